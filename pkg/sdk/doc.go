// Package fedsearch embeds a fedsearch node in a Go program.
//
// The client is built from the same YAML configuration the server reads and
// exposes federated search plus the indexing and maintenance operations.
//
//	client, _ := fedsearch.New(ctx, fedsearch.WithConfigFile("config/local.yaml"))
//	defer client.Close()
//
//	res, _ := client.Search(ctx, fedsearch.SearchRequest{Query: "boots", Limit: 20})
//	for _, h := range res.Hits {
//	    fmt.Println(h.Index, h.Score, h.Document["title"])
//	}
//
// # Typed results
//
//	type Product struct {
//	    ID    string  `json:"id"`
//	    Title string  `json:"title"`
//	    Price float64 `json:"price"`
//	}
//
//	hits, _ := fedsearch.SearchAs[Product](ctx, client, fedsearch.SearchRequest{
//	    Query:   "boots",
//	    Indexes: []string{"products"},
//	})
package fedsearch
