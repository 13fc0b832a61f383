// Command stream-count reports how many result records a stream holds by
// decoding it sequentially until end of stream. There is no index and no
// random access, so it works on any stream a pipeline run produced.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tanksight/refract3d/internal/recordio"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s <result-stream>\n", os.Args[0])
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("stream-count: %v", err)
	}
	defer f.Close()

	n, err := recordio.Count(f)
	if err != nil {
		log.Fatalf("stream-count: decoded %d records before error: %v", n, err)
	}
	fmt.Println(n)
}
