// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package console renders forms in a terminal and reads answers.

Choice questions list numbered options; the user types one or more numbers
separated by commas or spaces. A blank line keeps the current answer.

	p := console.New(os.Stdin, os.Stdout)
	a, err := p.Ask(1, len(questions), q, current, "")

Prompts are only written when stdin is a terminal, so answers can be piped
in. DescribeWindow and DescribeDraft phrase times relative to now:

	opens 3 days from now
	40% complete, saved 2 minutes ago
*/
package console
