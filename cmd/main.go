package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	payload_dumper "github.com/affggh/payload_dumper"
)

type config struct {
	source    string
	outdir    string
	images    []string
	listOnly  bool
	threads   int
	userAgent string
}

func usage() {
	prog := os.Args[0]
	fmt.Printf("Usage: %s [options] <payload_source>\n", prog)
	fmt.Println("Sources:")
	fmt.Println("  <file_path>          Local payload.bin or ZIP file")
	fmt.Println("  <http_url>           Remote ZIP file URL")
	fmt.Println("Options:")
	fmt.Println("  --out <dir>          Output directory (default: output)")
	fmt.Println("  --images <list>      Comma-separated list of images to extract")
	fmt.Println("  --list               List all partitions and exit")
	fmt.Println("  --threads <num>      Number of threads to use")
	fmt.Println("  --user-agent <ua>    Custom User-Agent for HTTP requests")
	fmt.Println("  --help               Show this help message")
}

func run() int {
	cfg := config{}

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.Usage = usage
	fs.StringVar(&cfg.outdir, "out", "output", "output directory")
	fs.Func("images", "comma-separated list of images to extract", func(s string) error {
		cfg.images = strings.Split(s, ",")
		return nil
	})
	fs.BoolVar(&cfg.listOnly, "list", false, "list all partitions and exit")
	fs.IntVar(&cfg.threads, "threads", payload_dumper.DefaultWorkers(), "number of threads to use")
	fs.StringVar(&cfg.userAgent, "user-agent", "", "custom User-Agent for HTTP requests")
	fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		usage()
		return 1
	}
	cfg.source = fs.Arg(0)

	source, err := payload_dumper.OpenPayloadSource(cfg.source, cfg.userAgent)
	if err != nil {
		payload_dumper.Logger.Printf("Failed to open payload source: %s: %v", cfg.source, err)
		return 1
	}
	defer source.Close()

	payload, err := payload_dumper.InitPayloadInfo(source)
	if err != nil {
		payload_dumper.Logger.Println(err)
		return 1
	}

	if cfg.listOnly {
		payload_dumper.PrintPartitionsInfo(payload.Manifest, cfg.images)
		return 0
	}

	workers := payload_dumper.NormalizeWorkers(cfg.threads)
	if err := payload.ExtractPartitions(cfg.images, cfg.outdir, workers); err != nil {
		payload_dumper.Logger.Println(err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
