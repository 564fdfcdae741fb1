// ObjectIR CLI - compiles, runs and inspects ObjectIR programs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/muesli/termenv"
	"github.com/tliron/commonlog"

	"github.com/objectir/objectir/compiler"
	"github.com/objectir/objectir/image"
	"github.com/objectir/objectir/manifest"
	"github.com/objectir/objectir/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0-2)")
	entry := flag.String("m", "", "Entry method (e.g. 'Main.Run')")
	disasm := flag.Bool("S", false, "Print the lowered listing instead of running")
	exportJSON := flag.Bool("json", false, "Export the lowered program as JSON instead of running")
	trace := flag.Bool("trace", false, "Trace every executed instruction to stderr")
	saveImage := flag.String("save-image", "", "Write the compiled image to this file")
	loadImage := flag.String("load-image", "", "Load a compiled image instead of sources")
	storePath := flag.String("store", "", "Also record compiled methods in this content store")
	maxDepth := flag.Int("max-depth", 0, "Call depth limit (0 = default)")
	divideThrow := flag.Bool("divide-throw", false, "Throw System.DivideByZeroException instead of faulting on integer division by zero")
	noColor := flag.Bool("no-color", false, "Disable colored output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: oir [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles the given .oir files (or the oir.toml project in the current\n")
		fmt.Fprintf(os.Stderr, "directory) and runs the entry method.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  oir prog.oir -m Main.Run         # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  oir prog.oir -S                  # Show the lowered listing\n")
		fmt.Fprintf(os.Stderr, "  oir prog.oir -save-image out.oimg\n")
		fmt.Fprintf(os.Stderr, "  oir -load-image out.oimg -m Main.Run\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	reg, mf, err := buildRegistry(flag.Args(), *loadImage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *saveImage != "" {
		if err := writeImage(reg, *saveImage); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *storePath == "" && mf != nil {
		*storePath = mf.Image.Store
	}
	if *storePath != "" {
		if err := recordStore(reg, *storePath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *exportJSON {
		data, err := image.ExportJSON(reg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}
	if *disasm {
		printListing(reg, *noColor)
		return
	}

	name := *entry
	if name == "" && mf != nil {
		name = mf.Source.Entry
	}
	if name == "" {
		if *saveImage != "" || *storePath != "" {
			return
		}
		flag.Usage()
		os.Exit(2)
	}

	eng, err := vm.NewEngine(reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	eng.DivideAsThrow = *divideThrow
	if mf != nil && mf.Engine.DividePolicy == "throw" {
		eng.DivideAsThrow = true
	}
	if *maxDepth > 0 {
		eng.MaxDepth = *maxDepth
	} else if mf != nil && mf.Engine.MaxCallDepth > 0 {
		eng.MaxDepth = mf.Engine.MaxCallDepth
	}
	if *trace {
		eng.TraceWriter = os.Stderr
	}

	os.Exit(runEntry(eng, name))
}

// buildRegistry compiles sources or restores an image. Sources come
// from the command line, or from the project manifest when none are
// given.
func buildRegistry(args []string, imagePath string) (*vm.Registry, *manifest.Manifest, error) {
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, nil, err
		}
		img, err := image.Unmarshal(data)
		if err != nil {
			return nil, nil, err
		}
		reg, err := image.Restore(img)
		return reg, nil, err
	}

	loader, err := compiler.NewLoader()
	if err != nil {
		return nil, nil, err
	}

	var mf *manifest.Manifest
	files := args
	if len(files) == 0 {
		mf, err = manifest.FindAndLoad(".")
		if err != nil {
			return nil, nil, err
		}
		if mf == nil {
			return nil, nil, fmt.Errorf("no input files and no oir.toml found")
		}
		files, err = mf.SourceFiles()
		if err != nil {
			return nil, nil, err
		}
		if len(files) == 0 {
			return nil, nil, fmt.Errorf("no .oir files under %s", strings.Join(mf.Source.Dirs, ", "))
		}
	}

	for _, f := range files {
		if err := loader.LoadFile(f); err != nil {
			return nil, nil, err
		}
	}
	reg, err := loader.Publish()
	return reg, mf, err
}

func writeImage(reg *vm.Registry, path string) error {
	img, err := image.Snapshot(reg)
	if err != nil {
		return err
	}
	data, err := image.Marshal(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func recordStore(reg *vm.Registry, path string) error {
	store, err := image.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	_, err = store.PutRegistry(reg)
	return err
}

// runEntry resolves Class.Method, runs it, and maps the outcome to an
// exit code: an int32 return is the code, an uncaught throw or error
// is 1.
func runEntry(eng *vm.Engine, name string) int {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		fmt.Fprintf(os.Stderr, "Error: entry %q is not of the form Class.Method\n", name)
		return 2
	}
	m := findEntry(eng.Registry(), name[:dot], name[dot+1:])
	if m == nil {
		fmt.Fprintf(os.Stderr, "Error: no static niladic method %s\n", name)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := eng.CallMethod(ctx, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if out.Thrown != nil {
		fmt.Fprintf(os.Stderr, "Uncaught: %s\n", out.Thrown)
		return 1
	}
	if out.HasValue && out.Value.Kind() == vm.KindInt32 {
		return int(int32(out.Value.Int64()))
	}
	return 0
}

// findEntry picks the static zero-argument method named class.method.
func findEntry(reg *vm.Registry, class, method string) *vm.MethodDescriptor {
	for _, m := range reg.Methods() {
		if m.Declaring.Name == class && m.Name == method &&
			m.Modifier == vm.ModStatic && len(m.Params) == 0 {
			return m
		}
	}
	return nil
}

// printListing disassembles every lowered method, colorized unless
// disabled or the terminal does not support it.
func printListing(reg *vm.Registry, noColor bool) {
	out := termenv.NewOutput(os.Stdout)
	if noColor {
		out = termenv.NewOutput(os.Stdout, termenv.WithProfile(termenv.Ascii))
	}
	header := out.Color("6") // cyan
	faint := out.Color("8")

	methods := reg.Methods()
	sort.Slice(methods, func(i, j int) bool {
		return methods[i].Signature().Key() < methods[j].Signature().Key()
	})

	for _, m := range methods {
		if m.Host != nil {
			continue
		}
		listing := vm.Disassemble(m)
		lines := strings.Split(strings.TrimRight(listing, "\n"), "\n")
		fmt.Println(out.String(lines[0]).Foreground(header).Bold())
		for _, line := range lines[1:] {
			trimmed := strings.TrimSpace(line)
			if idx := strings.IndexByte(trimmed, ' '); idx > 0 && isIndex(trimmed[:idx]) {
				fmt.Printf("  %s  %s\n",
					out.String(trimmed[:idx]).Foreground(faint),
					trimmed[idx+2:])
				continue
			}
			fmt.Println(line)
		}
		fmt.Println()
	}
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
