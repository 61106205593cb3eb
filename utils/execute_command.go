package utils

import (
	"bufio"
	"bytes"
	"os/exec"

	"github.com/ansel1/merry/v2"
)

// maxStderr bounds how much diagnostic output is attached to a failed command.
const maxStderr = 32 * 1024

type stderrKey struct{}

var ErrCommandFailed = merry.Sentinel("command failed")

// ExecuteCmd executes the cmd and returns through outputCallback line-by-line before returning the whole stdout at the end.
// On failure the tail of stderr is attached to the error, see Stderr.
func ExecuteCmd(cmd *exec.Cmd, outputCallback func(string)) (string, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", merry.Wrap(ErrCommandFailed, merry.WithCause(err), merry.WithMessagef("stdout pipe: %v", err))
	}

	errorBytes := bytes.Buffer{}
	cmd.Stderr = &errorBytes

	err = cmd.Start()
	if err != nil {
		return "", merry.Wrap(ErrCommandFailed, merry.WithCause(err), merry.WithMessagef("start failed %s", err.Error()))
	}

	var result bytes.Buffer

	scanner := bufio.NewScanner(stdout)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		line := scanner.Text()
		result.WriteString(line)
		result.WriteByte('\n')
		if outputCallback != nil {
			outputCallback(line)
		}
	}

	err = cmd.Wait()
	if err != nil {
		diagnostics := tail(errorBytes.Bytes(), maxStderr)
		return "", merry.Wrap(ErrCommandFailed,
			merry.WithCause(err),
			merry.WithValue(stderrKey{}, diagnostics),
			merry.WithMessagef("execution failed error: %s,\nmessage: %s", err.Error(), diagnostics),
		)
	}

	return result.String(), nil
}

// Stderr returns the diagnostic output attached by ExecuteCmd, if any.
func Stderr(err error) string {
	v, _ := merry.Value(err, stderrKey{}).(string)
	return v
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
