package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// prompter asks for estimate selectors on the console, re-asking until the
// answer is valid.
type prompter struct {
	sc  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{sc: bufio.NewScanner(in), out: out}
}

func (p *prompter) line() (string, error) {
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.sc.Text()), nil
}

// choose lists options numbered from 1 and returns the chosen number.
func (p *prompter) choose(question string, options []string) (int, error) {
	fmt.Fprintln(p.out, question)
	for i, o := range options {
		fmt.Fprintf(p.out, "  %d - %s\n", i+1, o)
	}
	for {
		fmt.Fprint(p.out, "> ")
		s, err := p.line()
		if err != nil {
			return 0, err
		}
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(options) {
			return n, nil
		}
		fmt.Fprintf(p.out, "invalid input, enter a number from 1 to %d\n", len(options))
	}
}

func (p *prompter) quarter() (surveillance.Quarter, error) {
	quarters := surveillance.Quarters()
	options := make([]string, len(quarters))
	for i, q := range quarters {
		options[i] = "through " + q.MonthName()
	}
	n, err := p.choose("Which period does the observed count cover?", options)
	if err != nil {
		return 0, err
	}
	return surveillance.QuarterFromSelector(n)
}

func (p *prompter) metric() (surveillance.Metric, error) {
	metrics := surveillance.Metrics()
	options := make([]string, len(metrics))
	for i, m := range metrics {
		options[i] = m.String()
	}
	n, err := p.choose("Which metric was observed?", options)
	if err != nil {
		return 0, err
	}
	return surveillance.MetricFromSelector(n)
}

func (p *prompter) observed() (int, error) {
	for {
		fmt.Fprint(p.out, "Observed count: ")
		s, err := p.line()
		if err != nil {
			return 0, err
		}
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n, nil
		}
		fmt.Fprintln(p.out, "invalid input, enter a whole number of 0 or more")
	}
}

// fill prompts for every selector missing from f.
func (p *prompter) fill(f queryFlags) error {
	if *f.quarter == 0 {
		q, err := p.quarter()
		if err != nil {
			return err
		}
		*f.quarter = int(q)
	}
	if *f.metric == "" {
		m, err := p.metric()
		if err != nil {
			return err
		}
		*f.metric = m.String()
	}
	if *f.observed < 0 {
		n, err := p.observed()
		if err != nil {
			return err
		}
		*f.observed = n
	}
	return nil
}
