package tools

import (
	"errors"

	"icalmcp/internal/model"
)

const permissionInstructions = `Calendar access is not granted. Please follow these steps:

1. Open the icalmcp config file (config.yaml)
2. Set store_dir to a directory this process may create and write
3. Check the directory permissions allow the current user to write files
4. Restart the server

Once you've granted access, try your calendar operation again.
`

// errorText renders err for a tool caller. Permission failures become the
// step-by-step instructions.
func errorText(err error) string {
	if errors.Is(err, model.ErrPermissionDenied) {
		return permissionInstructions
	}
	return err.Error()
}
