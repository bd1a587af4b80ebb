package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/emberlang/ember"
)

func readArgs() *args {
	a := &args{
		scriptPath:  flag.String("script", "", "Path to the script file"),
		interactive: flag.Bool("interactive", false, "Drops into a shell"),
		dumpOnly:    flag.Bool("dump-only", false, "Compile the script to a binary chunk and write it to -output instead of running it"),
		outputPath:  flag.String("output", "/dev/stdout", "Path to the output file, used with -dump-only"),
		gcStepmul:   flag.Int("gc-stepmul", 200, "Gray objects traversed per incremental GC propagate step"),
		maxStack:    flag.Int("max-stack", 1000000, "Maximum VM register stack size"),
	}
	flag.Parse()
	return a
}

type args struct {
	scriptPath  *string
	interactive *bool
	dumpOnly    *bool
	outputPath  *string
	gcStepmul   *int
	maxStack    *int
}

func main() {
	a := readArgs()

	cfg := ember.NewConfig()
	cfg.SetInt("gc.stepmul", *a.gcStepmul)
	cfg.SetInt("vm.maxstack", *a.maxStack)

	state := ember.NewState(cfg)
	state.OpenLibraries()

	if *a.interactive {
		repl(state)
		return
	}

	if *a.scriptPath == "" {
		log.Fatal("Script not informed")
	}

	source, err := os.ReadFile(*a.scriptPath)
	if err != nil {
		log.Fatalf("Can't read script file: %s", err.Error())
	}

	if *a.dumpOnly {
		if err := state.Load(source, *a.scriptPath); err != nil {
			log.Fatalf("Can't compile script: %s", err.Error())
		}
		chunk, err := state.DumpTop()
		if err != nil {
			log.Fatalf("Can't dump script: %s", err.Error())
		}
		if err := os.WriteFile(*a.outputPath, chunk, 0644); err != nil {
			log.Fatalf("Can't write output: %s", err.Error())
		}
		return
	}

	if err := state.DoString(string(source), *a.scriptPath); err != nil {
		log.Fatalf("ERROR: %s", err.Error())
	}
}

// repl is a lil shell: each line is compiled and run as its own chunk,
// sharing one State (and so one set of globals) across lines.
func repl(state *ember.State) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		text, err := reader.ReadString('\n')
		if text == "" || err != nil {
			fmt.Println("")
			break
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := state.DoString(text, "=stdin"); err != nil {
			fmt.Println("ERROR: " + err.Error())
		}
	}
}
