// Package specdex embeds the specdex document library in a Go program:
// the same store, search router and archives the HTTP API serves, without
// the HTTP hop.
//
//	client, _ := specdex.New(ctx,
//	    specdex.WithSQLite("specdex.db"),
//	    specdex.WithEmbedder(myEmbedder),
//	)
//	defer client.Close()
//
//	res, _ := client.Search().
//	    Query("EC site").
//	    Mode(specdex.ModeHybrid).
//	    Tech("backend", "Go").
//	    LastDays(30).
//	    Do(ctx)
//	if res.Degraded {
//	    log.Println(res.Note)
//	}
//
// Without an embedder, vector search fails and hybrid search degrades to
// text and metadata matching.
package specdex
