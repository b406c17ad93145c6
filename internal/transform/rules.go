package transform

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
)

// Input is what a rule sees. Value is the rule's source value, if any.
type Input struct {
	Value    any
	Record   document.Record
	Document document.Document
	Args     map[string]string
	BaseURL  string
}

// lookup reads a field from the document being built, then from the raw record.
func (in Input) lookup(field string) (any, bool) {
	if v, ok := in.Document[field]; ok {
		return v, true
	}
	v, ok := in.Record.Attributes[field]
	return v, ok
}

// RuleFunc derives one value. It must be pure.
type RuleFunc func(in Input) (any, error)

// Rules is a registry of named derivation functions.
type Rules struct {
	mu  sync.RWMutex
	fns map[string]RuleFunc
}

// Built-in rule names.
const (
	RuleCopy      = "copy"
	RuleTemplate  = "template"
	RuleDate      = "date"
	RuleCurrency  = "currency"
	RuleHTMLStrip = "html_strip"
	RuleSlug      = "slug"
	RuleURL       = "url"
	RulePhone     = "phone"
	RuleEmail     = "email"
	RuleJSON      = "json"
	RulePluck     = "pluck"
	RuleJoin      = "join"
)

// NewRules returns a registry preloaded with the built-in rules.
func NewRules() *Rules {
	return &Rules{fns: map[string]RuleFunc{
		RuleCopy:      copyRule,
		RuleTemplate:  templateRule,
		RuleDate:      dateRule,
		RuleCurrency:  currencyRule,
		RuleHTMLStrip: htmlStripRule,
		RuleSlug:      slugRule,
		RuleURL:       urlRule,
		RulePhone:     phoneRule,
		RuleEmail:     emailRule,
		RuleJSON:      jsonRule,
		RulePluck:     pluckRule,
		RuleJoin:      joinRule,
	}}
}

// Register adds or replaces a named rule.
func (r *Rules) Register(name string, fn RuleFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("rule name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[name] = fn
	return nil
}

// Lookup returns the named rule.
func (r *Rules) Lookup(name string) (RuleFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// Names returns the registered rule names, sorted.
func (r *Rules) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fns))
	for n := range r.fns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every rule a mapping references is registered.
func (r *Rules) Validate(m mapping.Mapping) error {
	check := func(kind string, cs []mapping.Computed) error {
		for _, c := range cs {
			if _, ok := r.Lookup(c.Rule.Name); !ok {
				return fmt.Errorf("mapping %s: %s %s: unknown rule %q", m.SourceType(), kind, c.Field, c.Rule.Name)
			}
		}
		return nil
	}
	if err := check("computed field", m.Computed()); err != nil {
		return err
	}
	return check("transformation", m.Transformations())
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return document.IDString(v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func copyRule(in Input) (any, error) {
	return in.Value, nil
}

var placeholder = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// templateRule renders args["template"], replacing {field} with record values.
func templateRule(in Input) (any, error) {
	tpl, ok := in.Args["template"]
	if !ok {
		return nil, fmt.Errorf("template: missing template argument")
	}
	out := placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		v, ok := in.lookup(m[1 : len(m)-1])
		if !ok || v == nil {
			return ""
		}
		return toString(v)
	})
	return strings.TrimSpace(out), nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime reads RFC3339, SQL datetime or date strings, unix seconds, or a time.Time.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0), true
		}
	case int, int32, int64, float32, float64, json.Number:
		f, err := toFloat(t)
		if err == nil {
			sec, frac := math.Modf(f)
			return time.Unix(int64(sec), int64(frac*1e9)), true
		}
	}
	return time.Time{}, false
}

// dateRule normalizes to RFC3339 UTC, or args["layout"]. Unparseable values pass through.
func dateRule(in Input) (any, error) {
	if isBlank(in.Value) {
		return nil, nil
	}
	ts, ok := ParseTime(in.Value)
	if !ok {
		return in.Value, nil
	}
	layout := time.RFC3339
	if l := in.Args["layout"]; l != "" {
		layout = l
	}
	return ts.UTC().Format(layout), nil
}

// currencyRule formats with two decimals and thousands separators, prefixed by args["symbol"].
func currencyRule(in Input) (any, error) {
	if isBlank(in.Value) {
		return nil, nil
	}
	f, err := toFloat(in.Value)
	if err != nil {
		return nil, fmt.Errorf("currency: %w", err)
	}
	return in.Args["symbol"] + formatThousands(f), nil
}

func formatThousands(f float64) string {
	s := strconv.FormatFloat(math.Abs(f), 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var b strings.Builder
	if f < 0 && s != "0.00" {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

func htmlStripRule(in Input) (any, error) {
	if isBlank(in.Value) {
		return nil, nil
	}
	s := tagPattern.ReplaceAllString(toString(in.Value), " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " ")), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and joins alphanumeric runs with hyphens.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func slugRule(in Input) (any, error) {
	if isBlank(in.Value) {
		return nil, nil
	}
	return Slugify(toString(in.Value)), nil
}

// urlRule keeps absolute URLs and resolves relative ones against the base URL.
func urlRule(in Input) (any, error) {
	if isBlank(in.Value) {
		return nil, nil
	}
	s := strings.TrimSpace(toString(in.Value))
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		return s, nil
	}
	return JoinURL(in.BaseURL, s), nil
}

// JoinURL joins base and path with exactly one slash.
func JoinURL(base, path string) string {
	if base == "" {
		return "/" + strings.TrimLeft(path, "/")
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

var nonPhone = regexp.MustCompile(`[^0-9+]`)

func phoneRule(in Input) (any, error) {
	if isBlank(in.Value) {
		return nil, nil
	}
	return nonPhone.ReplaceAllString(toString(in.Value), ""), nil
}

// emailRule keeps a bare, valid address and drops anything else.
func emailRule(in Input) (any, error) {
	if isBlank(in.Value) {
		return nil, nil
	}
	s := strings.TrimSpace(toString(in.Value))
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return nil, nil
	}
	return s, nil
}

func jsonRule(in Input) (any, error) {
	if isBlank(in.Value) {
		return nil, nil
	}
	var raw []byte
	switch t := in.Value.(type) {
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		return in.Value, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return out, nil
}

// pluckRule collects args["field"] from a list of objects.
func pluckRule(in Input) (any, error) {
	field := in.Args["field"]
	if field == "" {
		return nil, fmt.Errorf("pluck: missing field argument")
	}
	items := asObjects(in.Value)
	out := make([]any, 0, len(items))
	for _, item := range items {
		if v, ok := item[field]; ok && v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// joinRule joins a list value, or the record fields named in args["fields"], with args["sep"].
func joinRule(in Input) (any, error) {
	sep, ok := in.Args["sep"]
	if !ok {
		sep = ", "
	}
	var parts []string
	if fields := in.Args["fields"]; fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if v, ok := in.lookup(strings.TrimSpace(f)); ok && !isBlank(v) {
				parts = append(parts, toString(v))
			}
		}
		return strings.Join(parts, sep), nil
	}
	switch t := in.Value.(type) {
	case []string:
		parts = t
	case []any:
		for _, v := range t {
			if !isBlank(v) {
				parts = append(parts, toString(v))
			}
		}
	case nil:
		return nil, nil
	default:
		return toString(t), nil
	}
	return strings.Join(parts, sep), nil
}

// asObjects normalizes a relation value into a list of objects.
func asObjects(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case map[string]any:
		return []map[string]any{t}
	case document.Document:
		return []map[string]any{t}
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, m)
			case document.Document:
				out = append(out, m)
			}
		}
		return out
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err == nil {
			return asObjects(decoded)
		}
	case []byte:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err == nil {
			return asObjects(decoded)
		}
	}
	return nil
}
