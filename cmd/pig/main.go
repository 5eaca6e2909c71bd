// pig - the TTA program image generator
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/pig/compressor"
	"github.com/chazu/pig/manifest"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "compressors":
			handleCompressorsCommand()
			return
		case "describe":
			handleDescribeCommand(os.Args[2:])
			return
		case "serve":
			handleServeCommand(os.Args[2:])
			return
		case "lsp":
			handleLSPCommand(os.Args[2:])
			return
		case "images":
			handleImagesCommand(os.Args[2:])
			return
		}
	}

	verbose := flag.Bool("v", false, "Verbose output")
	encodingPath := flag.String("m", "", "Encoding description (.toml) or snapshot (.cbor)")
	format := flag.String("f", "", "Image format: "+strings.Join(formatNames(), ", "))
	output := flag.String("o", "", "Output directory")
	mausPerLine := flag.Int("w", -1, "MAUs per program image row (0 = one MAU per row)")
	compressorName := flag.String("c", "", "Compressor (see 'pig compressors')")
	params := flag.String("p", "", "Compressor parameters, name=value[,name=value...]")
	entity := flag.String("e", "", "Prefix of generated VHDL names")
	imemMAUWidth := flag.Int("imem-mau-width", -1, "Instruction memory MAU width (0 = one instruction per MAU)")
	ensure := flag.Bool("ensure-programmability", false, "Seed dictionaries with every encodable move")
	dataFormat := flag.String("data-format", "", "Data image format (default: the program image format)")
	dataMAUWidth := flag.Int("data-mau-width", 0, "Data MAU width in bits")
	dataMAUsPerLine := flag.Int("data-maus-per-line", 0, "Data MAUs per image row")
	noStore := flag.Bool("no-store", false, "Do not record images in the image store")
	reuse := flag.Bool("reuse-dictionary", false, "Restore the dictionaries saved by an earlier run over the same encoding")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pig [options] [programs...]\n\n")
		fmt.Fprintf(os.Stderr, "Generates instruction and data memory images for a TTA processor.\n")
		fmt.Fprintf(os.Stderr, "Settings come from pig.toml when one is found; options override it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  pig compressors             # List compressors\n")
		fmt.Fprintf(os.Stderr, "  pig describe <compressor>   # Describe a compressor\n")
		fmt.Fprintf(os.Stderr, "  pig images <program>        # List stored images of a program\n")
		fmt.Fprintf(os.Stderr, "  pig serve --port 4568       # Start the image service\n")
		fmt.Fprintf(os.Stderr, "  pig lsp                     # Start the pig.toml language server on stdio\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pig -m tta.toml -f mif -w 2 main.toml\n")
		fmt.Fprintf(os.Stderr, "  pig -c instruction_dictionary -ensure-programmability\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}

	j, err := newJob(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Command line options override pig.toml
	if *encodingPath != "" {
		j.encodingPath = *encodingPath
	}
	if *format != "" {
		j.format = *format
	}
	if *output != "" {
		j.output = *output
	}
	if *mausPerLine >= 0 {
		j.mausPerLine = *mausPerLine
	}
	if *compressorName != "" {
		j.compressor = *compressorName
	}
	if *params != "" {
		p, err := parseParameters(*params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for k, v := range p {
			j.parameters[k] = v
		}
	}
	if *ensure {
		j.parameters[compressor.ParamEnsureProgrammability] = "yes"
	}
	if *entity != "" {
		j.entity = *entity
	}
	if *imemMAUWidth >= 0 {
		j.imemMAUWidth = *imemMAUWidth
	}
	if *dataFormat != "" {
		j.dataFormat = *dataFormat
	}
	if *dataMAUWidth > 0 {
		j.dataMAUWidth = *dataMAUWidth
	}
	if *dataMAUsPerLine > 0 {
		j.dataMAUsPerLine = *dataMAUsPerLine
	}
	if *noStore {
		j.storePath = ""
	}
	j.reuseDictionary = *reuse
	j.programPaths = append(j.programPaths, flag.Args()...)

	written, err := j.run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, path := range written {
		fmt.Println(path)
	}
}

// handleCompressorsCommand processes `pig compressors`.
func handleCompressorsCommand() {
	for _, info := range compressor.Available() {
		fmt.Println(info.Name)
	}
}

// handleDescribeCommand processes `pig describe <compressor>`.
func handleDescribeCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: pig describe <compressor>")
		os.Exit(1)
	}
	for _, info := range compressor.Available() {
		if info.Name == args[0] {
			fmt.Println(info.Description)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Error: unknown compressor %q\n", args[0])
	os.Exit(1)
}

// parseParameters parses "name=value,name=value".
func parseParameters(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		if kv == "" {
			continue
		}
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed compressor parameter %q, want name=value", kv)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out, nil
}
