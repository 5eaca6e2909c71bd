package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/pig/manifest"
	"github.com/chazu/pig/server"
	"github.com/chazu/pig/store"
)

// storePathFlag returns the explicit store path, or the one of pig.toml.
func storePathFlag(path string) string {
	if path != "" {
		return path
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		return ""
	}
	return m.StorePath()
}

// handleServeCommand processes `pig serve`.
// Usage:
//
//	pig serve                     # serve on :4568
//	pig serve --port 8080 --store images.db
func handleServeCommand(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 4568, "Port of the image service")
	storePath := fs.String("store", "", "Image store (default: the one of pig.toml)")
	noStore := fs.Bool("no-store", false, "Serve without an image store")
	verbose := fs.Bool("v", false, "Verbose output")
	fs.Parse(args)

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(1, nil)
	}

	var opts []server.ServerOption
	if !*noStore {
		if path := storePathFlag(*storePath); path != "" {
			st, err := store.Open(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer st.Close()
			opts = append(opts, server.WithStore(st))
		}
	}

	srv := server.New(opts...)
	defer srv.Stop()
	if err := srv.ListenAndServe(fmt.Sprintf(":%d", *port)); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// handleLSPCommand processes `pig lsp`. Logs go to stderr; stdout carries
// the protocol.
func handleLSPCommand(args []string) {
	fs := flag.NewFlagSet("lsp", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Verbose output")
	fs.Parse(args)

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(1, nil)
	}
	if err := server.NewLSP().Run(); err != nil {
		fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
		os.Exit(1)
	}
}

// handleImagesCommand processes `pig images <program>`.
func handleImagesCommand(args []string) {
	fs := flag.NewFlagSet("images", flag.ExitOnError)
	storePath := fs.String("store", "", "Image store (default: the one of pig.toml)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: pig images [--store path] <program>")
		os.Exit(1)
	}

	path := storePathFlag(*storePath)
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: no image store; use --store or run inside a pig.toml project")
		os.Exit(1)
	}
	st, err := store.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	images, err := st.Images(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, img := range images {
		fmt.Printf("%s  %-7s %s\n", img.Hash, img.Format, img.Compressor)
	}
}
