package tui

import "strings"

// Command is a parsed slash command from the command bar.
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a slash command string into a Command. The name is
// lowercased; arguments keep their case (scope ids are case-sensitive).
// Returns nil if the input is not a command.
func ParseCommand(input string) *Command {
	input = strings.TrimSpace(input)
	if input == "" || input[0] != '/' {
		return nil
	}

	parts := strings.Fields(input)
	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}
