package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/internal/logx"
)

// runBuildClass implements the buildclass subcommand: accumulate token
// frequencies across one or more plain-text corpora (each optionally
// bzip2-compressed, detected by a ".bz2" filename suffix per
// class.OpenCorpus) and write the resulting class file.
func runBuildClass(args []string) int {
	log := logx.Default()

	fs := flag.NewFlagSet("patterncore buildclass", flag.ContinueOnError)
	var outFile string
	var minCount int
	var belowThresholdUnknown bool
	fs.StringVar(&outFile, "o", "", "output class file")
	fs.IntVar(&minCount, "t", 1, "minimum occurrence count for a token to receive a class")
	fs.BoolVar(&belowThresholdUnknown, "U", false, "map below-threshold tokens to the unknown class instead of dropping them")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: patterncore buildclass -o classfile [-t N] [-U] corpus...")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	corpora := fs.Args()

	if outFile == "" || len(corpora) == 0 {
		fs.Usage()
		return 2
	}

	b := class.NewBuilder()
	for _, path := range corpora {
		r, err := class.OpenCorpus(path)
		if err != nil {
			log.Errorf("open %s: %v", path, err)
			return 1
		}
		err = b.ProcessCorpus(r)
		r.Close()
		if err != nil {
			log.Errorf("process %s: %v", path, err)
			return 1
		}
		log.Infof("processed %s", path)
	}

	var opts []class.BuildOption
	opts = append(opts, class.WithMinCount(minCount))
	if belowThresholdUnknown {
		opts = append(opts, class.WithBelowThresholdUnknown())
	}

	codec, err := b.Build(opts...)
	if err != nil {
		log.Errorf("build: %v", err)
		return 1
	}

	f, err := os.Create(outFile)
	if err != nil {
		log.Errorf("create %s: %v", outFile, err)
		return 1
	}
	defer f.Close()
	if err := codec.Save(f); err != nil {
		log.Errorf("save %s: %v", outFile, err)
		return 1
	}

	log.Infof("wrote %s (%d classes)", outFile, codec.Size())
	return 0
}
