package agent

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
)

// nonSDKFields are broker-level option keys never forwarded to the
// in-container SDK entrypoint.
var nonSDKFields = map[string]bool{
	"userId":             true,
	"isContainerProject": true,
	"projectPath":        true,
}

// filterSDKOptions strips broker-level fields from the client options and
// drops model=="custom" so the container's environment picks the model.
func filterSDKOptions(options map[string]interface{}) map[string]interface{} {
	filtered := make(map[string]interface{}, len(options))
	for k, v := range options {
		if nonSDKFields[k] {
			continue
		}
		filtered[k] = v
	}
	if model, ok := filtered["model"].(string); ok && model == "custom" {
		delete(filtered, "model")
	}
	return filtered
}

// resolveCwd picks the in-container working directory for a query.
func resolveCwd(projectsRoot string, options map[string]interface{}) string {
	projectPath, _ := options["projectPath"].(string)
	isContainerProject, _ := options["isContainerProject"].(bool)
	if isContainerProject && projectPath != "" {
		return path.Join(projectsRoot, projectPath)
	}
	if cwd, ok := options["cwd"].(string); ok && cwd != "" {
		return path.Join("/workspace", path.Base(cwd))
	}
	return "/workspace"
}

// queryPayload is what the in-container SDK entrypoint receives, base64
// encoded so prompt contents never interact with shell quoting.
type queryPayload struct {
	Command string                 `json:"command"`
	Options map[string]interface{} `json:"options"`
}

// buildExecCommand assembles the in-container command line for a query.
func buildExecCommand(entrypoint, command string, sdkOptions map[string]interface{}) ([]string, error) {
	payload, err := json.Marshal(queryPayload{Command: command, Options: sdkOptions})
	if err != nil {
		return nil, fmt.Errorf("marshal query payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(payload)
	return []string{"node", entrypoint, encoded}, nil
}
