package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/corpus"
	"github.com/patterncore/patterncore/internal/logx"
	"github.com/patterncore/patterncore/pattern"
)

// runGrep implements the grep subcommand: scan a corpus (-f) or an
// indexed model's bound corpus (-i) for one or more query patterns,
// printing each match's sentence with left/right context. Queries
// given directly on the command line are taken as a disjunction; -j
// additionally reads queries, one per line, from a file.
func runGrep(args []string) int {
	log := logx.Default()

	fs := flag.NewFlagSet("patterncore grep", flag.ContinueOnError)
	var classFile, corpusFile, modelFile, queryFile string
	var left, right int
	fs.StringVar(&classFile, "c", "", "class file")
	fs.StringVar(&corpusFile, "f", "", "encoded corpus file")
	fs.StringVar(&modelFile, "i", "", "indexed pattern model (its bound corpus is searched)")
	fs.StringVar(&queryFile, "j", "", "file of query patterns, one per line")
	fs.IntVar(&left, "l", 0, "left context size")
	fs.IntVar(&right, "r", 0, "right context size")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	queries := fs.Args()

	if classFile == "" {
		fmt.Fprintln(os.Stderr, "grep: no class file specified (-c)")
		return 2
	}
	if corpusFile == "" && modelFile == "" {
		fmt.Fprintln(os.Stderr, "grep: no corpus (-f) or model (-i) specified")
		return 2
	}

	cf, err := os.Open(classFile)
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}
	defer cf.Close()
	codec, err := class.Load(cf)
	if err != nil {
		log.Errorf("load class file: %v", err)
		return 1
	}

	if queryFile != "" {
		extra, err := readQueryFile(queryFile)
		if err != nil {
			log.Errorf("%v", err)
			return 1
		}
		queries = append(queries, extra...)
	}
	if len(queries) == 0 {
		fmt.Fprintln(os.Stderr, "grep: no query patterns specified")
		return 2
	}

	var ic *corpus.IndexedCorpus
	if corpusFile != "" {
		f, err := os.Open(corpusFile)
		if err != nil {
			log.Errorf("%v", err)
			return 1
		}
		defer f.Close()
		ic, err = corpus.Load(f)
		if err != nil {
			log.Errorf("load corpus: %v", err)
			return 1
		}
	} else {
		m, err := loadModelFile(modelFile)
		if err != nil {
			log.Errorf("load model: %v", err)
			return 1
		}
		if !m.IsIndexed() || m.Corpus() == nil {
			fmt.Fprintln(os.Stderr, "grep: -i model has no bound corpus to search")
			return 2
		}
		ic = m.Corpus()
	}

	patterns := make([]pattern.Pattern, 0, len(queries))
	for _, q := range queries {
		p, err := buildQueryPattern(codec, q)
		if err != nil {
			log.Errorf("query %q: %v", q, err)
			return 1
		}
		patterns = append(patterns, p)
	}

	found := false
	for _, p := range patterns {
		matches, err := ic.FindPatternAll(p, 0)
		if err != nil {
			log.Errorf("%v", err)
			return 1
		}
		for _, match := range matches {
			found = true
			if err := printMatch(os.Stdout, ic, codec, match, left, right); err != nil {
				log.Errorf("%v", err)
				return 1
			}
		}
	}
	if !found {
		return 1
	}
	return 0
}

// buildQueryPattern encodes a whitespace-tokenised query string into an
// owning pattern. Codec.Encode's output already ends with the delimiter
// sentinel that pattern.FromBytes expects.
func buildQueryPattern(codec *class.Codec, query string) (pattern.Pattern, error) {
	data, err := codec.Encode(query, class.EncodeOptions{AllowUnknown: true})
	if err != nil {
		return pattern.Pattern{}, err
	}
	return pattern.FromBytes(data), nil
}

func readQueryFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// printMatch renders one match's sentence with left/right context
// windows, per the grep subcommand's -l/-r flags.
func printMatch(w io.Writer, ic *corpus.IndexedCorpus, codec *class.Codec, match corpus.Match, left, right int) error {
	sentenceLen, err := ic.SentenceLength(int(match.Ref.Sentence))
	if err != nil {
		return err
	}

	begin := int(match.Ref.Token) - left
	if begin < 0 {
		begin = 0
	}
	end := int(match.Ref.Token) + match.Pattern.N() + right
	if end > sentenceLen {
		end = sentenceLen
	}

	sentence, err := ic.GetSentence(int(match.Ref.Sentence))
	if err != nil {
		return err
	}
	window, err := sentence.Slice(begin, end-begin)
	if err != nil {
		return err
	}
	text, err := window.Render(codec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d\t%d\t%s\n", match.Ref.Sentence, match.Ref.Token, text)
	return err
}
