// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package taskd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// BatchLine is one parsed line of batch input: a selector, optionally
// followed by `--` and arguments for the task.
type BatchLine struct {
	Selector string
	Args     []string
}

// ReadBatch parses batch input, one request per line. Blank lines and
// `#`-prefixed comments are skipped. Each remaining line must be
// `selector [-- args...]`; tokens may be single- or double-quoted.
func ReadBatch(r io.Reader) ([]BatchLine, error) {
	var lines []BatchLine
	scanner := bufio.NewScanner(r)
	number := 0
	for scanner.Scan() {
		number++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		line, err := parseBatchLine(text)
		if err != nil {
			return nil, fmt.Errorf("batch line %d: %w", number, err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading batch input: %w", err)
	}
	return lines, nil
}

// DoBatch issues one request per line, sequentially and in order.
// Every line is attempted even after earlier ones fail; handle is
// called once per line with the outcome. The return value is the
// number of lines that failed, counting transport errors and
// unsuccessful responses alike.
func DoBatch(client *Client, lines []BatchLine, build func(BatchLine) RunRequest, handle func(BatchLine, Response, error)) int {
	failed := 0
	for _, line := range lines {
		response, err := client.Do(build(line))
		if err != nil || !response.OK {
			failed++
		}
		if handle != nil {
			handle(line, response, err)
		}
	}
	return failed
}

func parseBatchLine(text string) (BatchLine, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return BatchLine{}, err
	}
	if len(tokens) == 0 {
		return BatchLine{}, fmt.Errorf("no selector")
	}
	line := BatchLine{Selector: tokens[0]}
	rest := tokens[1:]
	if len(rest) == 0 {
		return line, nil
	}
	if rest[0] != "--" {
		return BatchLine{}, fmt.Errorf("unexpected token %q: arguments must follow --", rest[0])
	}
	line.Args = rest[1:]
	return line, nil
}

// tokenize splits on unquoted whitespace. Quotes group a token but are
// not part of it; there is no escape processing beyond that.
func tokenize(text string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inToken := false
	var quote rune

	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
