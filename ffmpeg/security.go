package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Flags that would change the inputs, outputs, or overwrite policy of a pass.
var reservedFlags = map[string]struct{}{
	"-i":              {},
	"-f":              {},
	"-y":              {},
	"-n":              {},
	"-filter_complex": {},
	"-map":            {},
}

// ParseExtraArgs splits operator-supplied encoder arguments without a shell and
// rejects anything that could escape the fixed command layout.
func ParseExtraArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	args, err := shlex.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid encoder argument syntax: %w", err)
	}
	for _, arg := range args {
		if _, reserved := reservedFlags[arg]; reserved {
			return nil, fmt.Errorf("encoder argument %s is managed by slidecast", arg)
		}
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return nil, fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}
	return args, nil
}
