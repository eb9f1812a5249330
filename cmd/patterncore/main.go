// Command patterncore is the command-line front end over the pattern,
// corpus, model, modelio, and report packages: it trains, loads, filters,
// reports on, and compares pattern models, mirroring the flag surface
// documented for the original patternmodeller front end.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/corpus"
	"github.com/patterncore/patterncore/internal/logx"
	"github.com/patterncore/patterncore/model"
	"github.com/patterncore/patterncore/modelio"
	"github.com/patterncore/patterncore/report"
	"github.com/patterncore/patterncore/streamcodec"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "grep":
			return runGrep(args[1:])
		case "buildclass":
			return runBuildClass(args[1:])
		}
	}
	return runModel(args)
}

type config struct {
	inputModel      string
	outputModel     string
	corpusFile      string
	classFile       string
	constraintModel string
	diffModel       string

	minTokens          int
	minLength          int
	maxLength          int
	minSkipTypes       int
	minTokensSkipgrams int

	unindexedOutput  bool
	skipgrams        bool
	flexgramArg      string
	pruneNonSubsumed int

	print        bool
	report       bool
	histogram    bool
	info         bool
	reverseIndex bool

	coocThreshold float64
	npmiThreshold float64

	deltaIndex  bool
	compression string
	verbose     bool
}

func runModel(args []string) int {
	log := logx.Default()

	fs := flag.NewFlagSet("patterncore", flag.ContinueOnError)
	cfg := &config{}

	fs.StringVar(&cfg.inputModel, "i", "", "input model file")
	fs.StringVar(&cfg.outputModel, "o", "", "output model file")
	fs.StringVar(&cfg.corpusFile, "f", "", "encoded corpus file")
	fs.StringVar(&cfg.classFile, "c", "", "class file")
	fs.StringVar(&cfg.constraintModel, "j", "", "constraint model file")
	fs.StringVar(&cfg.diffModel, "d", "", "compare against another model")

	fs.IntVar(&cfg.minTokens, "t", 2, "min_tokens")
	fs.IntVar(&cfg.minLength, "m", 1, "minimum pattern length")
	fs.IntVar(&cfg.maxLength, "l", 100, "maximum pattern length")
	fs.IntVar(&cfg.minSkipTypes, "T", 2, "min_skip_types")
	fs.IntVar(&cfg.minTokensSkipgrams, "y", 0, "min_tokens_skipgrams")
	fs.IntVar(&cfg.pruneNonSubsumed, "p", 0, "prune_non_subsumed starting order")

	fs.BoolVar(&cfg.unindexedOutput, "u", false, "store output as an unindexed model")
	fs.BoolVar(&cfg.skipgrams, "s", false, "compute skipgrams")
	fs.StringVar(&cfg.flexgramArg, "S", "", "flexgrams: \"s\" from skipgrams, or a co-occurrence threshold")

	fs.BoolVar(&cfg.print, "P", false, "print patterns")
	fs.BoolVar(&cfg.report, "R", false, "print a full report (alias for -P)")
	fs.BoolVar(&cfg.histogram, "H", false, "print an occurrence histogram")
	fs.BoolVar(&cfg.info, "V", false, "print summary info")
	fs.BoolVar(&cfg.reverseIndex, "Z", false, "print the reverse index")

	fs.Float64Var(&cfg.coocThreshold, "C", 0, "print pattern co-occurrences above threshold")
	fs.Float64Var(&cfg.npmiThreshold, "Y", 0, "print pattern NPMI above threshold")

	fs.BoolVar(&cfg.deltaIndex, "x", false, "select delta-varint index-list encoding on write")
	fs.StringVar(&cfg.compression, "z", "none", "model-file compression: none, zstd, s2, lz4")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose logging")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: patterncore [flags]")
		fmt.Fprintln(os.Stderr, "       patterncore grep -c classfile [-f corpus|-i model] [-l N] [-r N] pattern...")
		fmt.Fprintln(os.Stderr, "       patterncore buildclass -o classfile [-t N] [-U] corpus...")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if cfg.verbose {
		log.SetLevel(logx.LevelDebug)
	}

	if err := execModel(cfg, log); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		log.Errorf("%v", err)
		return 1
	}
	return 0
}

var errUsage = errors.New("usage error")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

func execModel(cfg *config, log *logx.Logger) error {
	var codec *class.Codec
	if cfg.classFile != "" {
		f, err := os.Open(cfg.classFile)
		if err != nil {
			return fmt.Errorf("open class file: %w", err)
		}
		defer f.Close()
		codec, err = class.Load(f)
		if err != nil {
			return fmt.Errorf("load class file: %w", err)
		}
	}

	m, err := loadOrTrainModel(cfg, log)
	if err != nil {
		return err
	}
	if m == nil {
		return usageErrorf("no input model or corpus specified (-i or -f)")
	}

	if cfg.outputModel != "" {
		if err := saveModel(cfg, m); err != nil {
			return fmt.Errorf("save output model: %w", err)
		}
		log.Infof("wrote %s (%d patterns)", cfg.outputModel, m.Size())
	}

	if cfg.diffModel != "" {
		other, err := loadModelFile(cfg.diffModel)
		if err != nil {
			return fmt.Errorf("load diff model: %w", err)
		}
		cs, err := report.Compare(m, other, false)
		if err != nil {
			return fmt.Errorf("compare: %w", err)
		}
		return report.RenderComparisons(os.Stdout, cs, codec)
	}

	switch {
	case cfg.print, cfg.report:
		return report.Print(os.Stdout, m, codec)
	case cfg.histogram:
		return report.Histogram(os.Stdout, m)
	case cfg.info:
		return report.Info(os.Stdout, m)
	case cfg.reverseIndex:
		return report.ReverseIndex(os.Stdout, m, codec)
	case cfg.coocThreshold > 0:
		return report.Cooccurrences(os.Stdout, m, codec, int(cfg.coocThreshold))
	case cfg.npmiThreshold > 0:
		return report.NPMIAbove(os.Stdout, m, codec, cfg.npmiThreshold)
	}
	return nil
}

func loadOrTrainModel(cfg *config, log *logx.Logger) (*model.Model, error) {
	if cfg.inputModel != "" && cfg.corpusFile == "" {
		return loadModelFile(cfg.inputModel)
	}
	if cfg.corpusFile == "" {
		return nil, nil
	}

	f, err := os.Open(cfg.corpusFile)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()
	ic, err := corpus.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	opts := []model.TrainOption{
		model.WithMinTokens(cfg.minTokens),
		model.WithLengthRange(cfg.minLength, cfg.maxLength),
		model.WithLogger(log),
	}
	if cfg.minTokensSkipgrams > 0 {
		opts = append(opts, model.WithMinTokensSkipgrams(cfg.minTokensSkipgrams))
	}
	if cfg.skipgrams {
		opts = append(opts, model.WithSkipgrams(), model.WithMinSkipTypes(cfg.minSkipTypes))
	}
	if cfg.pruneNonSubsumed > 0 {
		opts = append(opts, model.WithPruneNonSubsumed(cfg.pruneNonSubsumed))
	}
	if cfg.constraintModel != "" {
		constraint, err := loadModelFile(cfg.constraintModel)
		if err != nil {
			return nil, fmt.Errorf("load constraint model: %w", err)
		}
		opts = append(opts, model.WithConstraint(constraint))
	}
	if cfg.unindexedOutput {
		opts = append(opts, model.WithRemoveIndex())
	}

	log.Infof("training over %d sentences", ic.SentenceCount())
	m, err := model.Train(ic, opts...)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	if err := applyFlexgrams(m, cfg.flexgramArg); err != nil {
		return nil, err
	}
	return m, nil
}

// applyFlexgrams implements the -S flag: "s" derives flexgrams from
// already-stored skipgrams, any other value is parsed as a co-occurrence
// threshold and flexgrams are derived from co-occurring pattern pairs.
func applyFlexgrams(m *model.Model, arg string) error {
	switch arg {
	case "":
		return nil
	case "s", "S":
		return m.ComputeFlexgramsFromSkipgrams()
	default:
		threshold, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return usageErrorf("-S: %q is neither \"s\" nor a numeric threshold", arg)
		}
		return m.ComputeFlexgramsFromCooc(threshold)
	}
}

func loadModelFile(path string) (*model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, _, err := modelio.Load(f)
	return m, err
}

func saveModel(cfg *config, m *model.Model) error {
	f, err := os.Create(cfg.outputModel)
	if err != nil {
		return err
	}
	defer f.Close()

	var opts []modelio.SaveOption
	if cfg.deltaIndex {
		opts = append(opts, modelio.WithDeltaIndex())
	}
	if cfg.compression != "" && cfg.compression != "none" {
		ct, err := parseCompressionType(cfg.compression)
		if err != nil {
			return err
		}
		opts = append(opts, modelio.WithCompression(ct))
	}
	return modelio.Save(f, m, opts...)
}

func parseCompressionType(s string) (streamcodec.CompressionType, error) {
	switch s {
	case "none":
		return streamcodec.None, nil
	case "zstd":
		return streamcodec.Zstd, nil
	case "s2":
		return streamcodec.S2, nil
	case "lz4":
		return streamcodec.LZ4, nil
	default:
		return 0, usageErrorf("-z: unknown compression type %q", s)
	}
}
