package shell

import (
	"strings"
	"unicode"
)

// Stage is one command within a pipeline along with its redirections.
type Stage struct {
	// Cmd is the command name, always equal to Args[0].
	Cmd string `json:"cmd"`

	// Args holds the argument vector, including the command as Args[0].
	Args []string `json:"args"`

	// Input and Output are optional redirection targets. When several
	// redirections of the same direction appear in a segment the first
	// one wins.
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`

	// Background reports whether the pipeline should run detached. It is
	// only meaningful on the final stage.
	Background bool `json:"background,omitempty"`
}

// Pipeline is an ordered sequence of stages connected by pipes.
type Pipeline struct {
	Stages []Stage `json:"stages"`
}

// SyntaxError indicates malformed input. No pipeline is produced when one
// occurs.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string {
	return e.Message
}

// Parse turns a raw command line into a pipeline.
//
// The line is split on "|" into segments. A trailing "&" is only permitted
// on the final segment and marks the pipeline for background execution.
// Within a segment "<" and ">" introduce input and output redirections;
// the marker and its path are stripped before the remaining text is split
// on whitespace into the argument vector. Segments that are empty after
// stripping are dropped, so the returned pipeline may hold fewer stages
// than the line had segments, or none at all.
func Parse(raw string) (*Pipeline, error) {
	segments := strings.Split(raw, "|")

	p := &Pipeline{}
	for i, segment := range segments {
		segment = strings.TrimSpace(segment)

		background := false
		if strings.HasSuffix(segment, "&") {
			if i != len(segments)-1 {
				return nil, &SyntaxError{Message: "syntax error near unexpected token `|'"}
			}
			background = true
			segment = strings.TrimSpace(strings.TrimSuffix(segment, "&"))
		}

		stage, ok := parseStage(segment)
		if !ok {
			continue
		}
		stage.Background = background
		p.Stages = append(p.Stages, stage)
	}

	return p, nil
}

// parseStage tokenizes a single pipeline segment in one pass, classifying
// redirection markers, redirection paths and plain arguments. It reports
// false for segments with no arguments left after stripping redirections.
func parseStage(segment string) (Stage, bool) {
	var args strings.Builder
	var input, output string

	runes := []rune(segment)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '<' && r != '>' {
			args.WriteRune(r)
			continue
		}

		// Consume the whitespace-delimited path following the marker.
		// A marker with nothing after it yields no redirection.
		i++
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		path := string(runes[start:i])
		i-- // compensate the loop increment

		if path == "" {
			continue
		}
		switch {
		case r == '<' && input == "":
			input = path
		case r == '>' && output == "":
			output = path
		}
		// Later markers of an already-seen direction are stripped but
		// otherwise ignored.
		args.WriteRune(' ')
	}

	argv := strings.Fields(args.String())
	if len(argv) == 0 {
		return Stage{}, false
	}

	return Stage{
		Cmd:    argv[0],
		Args:   argv,
		Input:  input,
		Output: output,
	}, true
}
