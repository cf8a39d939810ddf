// Command feed-import loads JSON detection feeds into a crowdheat feed store
// so that renders can read them by video key.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/storage/sqlite"
)

func main() {
	dbPath := flag.String("db", "crowdheat.db", "path to sqlite feed store")
	key := flag.String("key", "", "video key (default: feed file name without extension; single feed only)")
	list := flag.Bool("list", false, "list stored feeds and exit")
	del := flag.String("delete", "", "delete the feed stored under this video key and exit")
	dry := flag.Bool("dry-run", false, "parse feeds and report, without writing")
	flag.Parse()

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()
	feeds := sqlite.NewFeedStore(db)

	switch {
	case *list:
		summaries, err := feeds.Videos()
		if err != nil {
			log.Fatalf("list feeds: %v", err)
		}
		for _, s := range summaries {
			fmt.Println(formatSummary(s))
		}
		return
	case *del != "":
		if err := feeds.Delete(*del); err != nil {
			log.Fatalf("delete feed: %v", err)
		}
		log.Printf("deleted %s", *del)
		return
	}

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: feed-import [-db PATH] [-key KEY] FEED.json...")
		os.Exit(2)
	}
	results, err := importFeeds(feeds, fsutil.OSFileSystem{}, flag.Args(), *key, *dry)
	for _, r := range results {
		log.Printf("%s: %s", r.Path, formatSummary(r.Summary))
	}
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
}
