package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
	"github.com/cucumber/godog"
)

// substituteCommandVariables replaces scenario placeholders in command strings.
// Placeholders expand to paths created earlier in the scenario, so feature
// files stay free of machine-specific paths.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	command = strings.ReplaceAll(command, "{temp_dir}", testCtx.TempDir)

	if testCtx.SourceDir != "" {
		command = strings.ReplaceAll(command, "{source_dir}", testCtx.SourceDir)
	}
	if testCtx.OutputDir != "" {
		command = strings.ReplaceAll(command, "{output_dir}", testCtx.OutputDir)
	}
	if testCtx.ManifestPath != "" {
		command = strings.ReplaceAll(command, "{manifest}", testCtx.ManifestPath)
	}
	if testCtx.ImageServer != nil {
		command = strings.ReplaceAll(command, "{image_server}", testCtx.ImageServer.URL)
	}
	command = strings.ReplaceAll(command, "{server_url}", testCtx.GetServerURL())

	return command
}

// resolvePath substitutes placeholders and makes the path absolute.
func (testCtx *TestContext) resolvePath(path string) string {
	path = testCtx.substituteCommandVariables(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(testCtx.WorkingDir, path)
}

// resolveBinary replaces a bare cli name with the built binary path.
func (testCtx *TestContext) resolveBinary(name string) string {
	if name != "nbid" {
		return name
	}
	if bin := os.Getenv("NBID_BIN"); bin != "" {
		return bin
	}
	return filepath.Join(testCtx.WorkingDir, "bin", "nbid")
}

// iRunCommand executes a command and stores the result.
func (testCtx *TestContext) iRunCommand(command string) error {
	// Perform command substitution
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	// Parse command into parts
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	parts[0] = testCtx.resolveBinary(parts[0])

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Execute command
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkingDir

	// Set environment variables
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	// Capture both stdout and stderr
	output, err := cmd.CombinedOutput()
	testCtx.LastOutput = string(output)
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	// Store exit code
	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}

	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theCommandMightFail accepts that command might fail.
func (testCtx *TestContext) theCommandMightFail() error {
	// This step accepts either success or failure
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substituteCommandVariables(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldNotContain verifies the output omits specific text.
func (testCtx *TestContext) theOutputShouldNotContain(unexpectedText string) error {
	unexpectedText = testCtx.substituteCommandVariables(unexpectedText)
	if strings.Contains(testCtx.LastOutput, unexpectedText) {
		return fmt.Errorf("output contains '%s' but should not\nActual output: %s", unexpectedText, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldBeValidJSON verifies the output is valid JSON.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	// Extract JSON from output (skip any preceding log lines)
	jsonPart, err := testCtx.extractJSON()
	if err != nil {
		return err
	}

	var js json.RawMessage
	if err := json.Unmarshal([]byte(jsonPart), &js); err != nil {
		return fmt.Errorf("output is not valid JSON: %w\nJSON part: %s", err, jsonPart)
	}
	return nil
}

// extractJSON finds the JSON payload within the command output.
func (testCtx *TestContext) extractJSON() (string, error) {
	output := strings.TrimSpace(testCtx.LastOutput)

	// Find the start of JSON (first '{' or '[')
	jsonStart := -1
	for i, r := range output {
		if r == '{' || r == '[' {
			jsonStart = i
			break
		}
	}

	if jsonStart == -1 {
		return "", fmt.Errorf("no JSON found in output: %s", testCtx.LastOutput)
	}

	return output[jsonStart:], nil
}

// theJSONShouldContain verifies JSON contains a specific field.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	// First verify it's valid JSON
	if err := testCtx.theOutputShouldBeValidJSON(); err != nil {
		return err
	}

	jsonPart, err := testCtx.extractJSON()
	if err != nil {
		return err
	}

	// Parse JSON and check for field
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(jsonPart), &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return testCtx.checkFieldExists(data, field)
}

func (testCtx *TestContext) checkFieldExists(data map[string]interface{}, field string) error {
	// Handle nested field paths (e.g., "result.success_count")
	parts := strings.Split(field, ".")
	current := data

	for i, part := range parts {
		if part == "array" {
			return testCtx.checkArrayField(current, parts, i)
		}

		if val, exists := current[part]; exists {
			if i == len(parts)-1 {
				// Last part - field exists
				return nil
			}
			// Navigate deeper
			if nextMap, ok := val.(map[string]interface{}); ok {
				current = nextMap
			} else {
				return fmt.Errorf("cannot navigate deeper into non-object field '%s'", part)
			}
		} else {
			return fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
		}
	}

	return nil
}

func (testCtx *TestContext) checkArrayField(current map[string]interface{}, parts []string, i int) error {
	// Special handling for array type checking
	if i == 0 {
		return errors.New("array cannot be the root field")
	}
	// Previous part should be the field name
	prevPart := parts[i-1]
	if val, exists := current[prevPart]; exists {
		if _, isArray := val.([]interface{}); !isArray {
			return fmt.Errorf("field '%s' is not an array", prevPart)
		}
		return nil
	}
	return fmt.Errorf("field '%s' not found in JSON", prevPart)
}

// theErrorShouldMention verifies the error message contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}

	// Check both error message and output for the expected text
	fullErrorText := testCtx.LastOutput
	if testCtx.LastError != nil {
		fullErrorText += " " + testCtx.LastError.Error()
	}

	// Convert to lowercase for case-insensitive matching
	if !strings.Contains(strings.ToLower(fullErrorText), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, fullErrorText)
	}

	return nil
}

// theFileShouldExist verifies a file exists.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	fullPath := testCtx.resolvePath(filename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", fullPath)
	}
	return nil
}

// theFileShouldNotExist verifies a file is absent.
func (testCtx *TestContext) theFileShouldNotExist(filename string) error {
	fullPath := testCtx.resolvePath(filename)
	if _, err := os.Stat(fullPath); err == nil {
		return fmt.Errorf("file exists but should not: %s", fullPath)
	}
	return nil
}

// theFileShouldContain verifies a file contains specific content.
func (testCtx *TestContext) theFileShouldContain(filename, expectedContent string) error {
	if err := testCtx.theFileShouldExist(filename); err != nil {
		return err
	}

	fullPath := testCtx.resolvePath(filename)
	content, err := os.ReadFile(fullPath) //nolint:gosec // G304: Test file reading with controlled path
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", fullPath, err)
	}

	if !strings.Contains(string(content), expectedContent) {
		return fmt.Errorf("file %s does not contain '%s'\nActual content: %s",
			filename, expectedContent, string(content))
	}

	return nil
}

// theDirectoryShouldExist verifies a directory exists.
func (testCtx *TestContext) theDirectoryShouldExist(dirname string) error {
	fullPath := testCtx.resolvePath(dirname)
	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", fullPath)
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory %s: %w", fullPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory: %s", fullPath)
	}
	return nil
}

// countImagesIn counts supported image files directly inside a directory.
func (testCtx *TestContext) countImagesIn(dirname string) (int, error) {
	fullPath := testCtx.resolvePath(dirname)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if utils.IsSupportedImage(entry.Name()) {
			count++
		}
	}
	return count, nil
}

// theDirectoryShouldContainImages verifies the number of images in a directory.
func (testCtx *TestContext) theDirectoryShouldContainImages(dirname string, expected int) error {
	count, err := testCtx.countImagesIn(dirname)
	if err != nil {
		return err
	}
	if count != expected {
		return fmt.Errorf("directory %s contains %d image(s), expected %d", dirname, count, expected)
	}
	return nil
}

// theDirectoryShouldContainNoImages verifies a directory holds no images.
func (testCtx *TestContext) theDirectoryShouldContainNoImages(dirname string) error {
	return testCtx.theDirectoryShouldContainImages(dirname, 0)
}

// theEnvironmentVariableIsSetTo sets environment variable.
func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.AddEnvVar(name, testCtx.substituteCommandVariables(value))
	return nil
}

// theOutputShouldContainUsageInformation verifies output contains usage information.
func (testCtx *TestContext) theOutputShouldContainUsageInformation() error {
	usageIndicators := []string{"Usage:", "usage:", "help", "Help"}
	for _, indicator := range usageIndicators {
		if strings.Contains(testCtx.LastOutput, indicator) {
			return nil
		}
	}
	return fmt.Errorf("output does not contain usage information: %s", testCtx.LastOutput)
}

// theOutputShouldListAvailableFlags verifies available flags are listed.
func (testCtx *TestContext) theOutputShouldListAvailableFlags() error {
	commonFlags := []string{"--help", "--verbose"}
	for _, flag := range commonFlags {
		if !strings.Contains(testCtx.LastOutput, flag) {
			return fmt.Errorf("flag not listed: %s", flag)
		}
	}
	return nil
}

// theOutputShouldListAvailableSubcommands verifies available subcommands are listed.
func (testCtx *TestContext) theOutputShouldListAvailableSubcommands() error {
	subcommands := []string{"transform", "fetch", "serve"}
	for _, cmd := range subcommands {
		if !strings.Contains(testCtx.LastOutput, cmd) {
			return fmt.Errorf("subcommand not listed: %s", cmd)
		}
	}
	return nil
}

// globalFlagsShouldBeDocumented verifies global flag documentation.
func (testCtx *TestContext) globalFlagsShouldBeDocumented() error {
	globalFlags := []string{"--help", "--version"}
	for _, flag := range globalFlags {
		if !strings.Contains(testCtx.LastOutput, flag) {
			return fmt.Errorf("global flag not documented: %s", flag)
		}
	}
	return nil
}

// buildInformationShouldBeIncluded verifies build info.
func (testCtx *TestContext) buildInformationShouldBeIncluded() error {
	// Check for the version output format that the nbid command produces
	requiredParts := []string{"nbid version", "Commit:", "Built:"}
	for _, part := range requiredParts {
		if !strings.Contains(testCtx.LastOutput, part) {
			return fmt.Errorf("version output missing '%s'\nActual output: %s", part, testCtx.LastOutput)
		}
	}
	return nil
}

// theProcessingShouldCompleteWithinTimeout verifies processing completes within timeout.
func (testCtx *TestContext) theProcessingShouldCompleteWithinTimeout() error {
	if testCtx.LastDuration > 30*time.Second {
		return fmt.Errorf("processing took too long: %v", testCtx.LastDuration)
	}
	return nil
}

// registerCommandSteps registers command execution and result verification steps.
func (testCtx *TestContext) registerCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the command might fail$`, testCtx.theCommandMightFail)
}

// registerOutputSteps registers output verification steps.
func (testCtx *TestContext) registerOutputSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
}

// registerErrorSteps registers error verification steps.
func (testCtx *TestContext) registerErrorSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
}

// registerFileSteps registers file and directory verification steps.
func (testCtx *TestContext) registerFileSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should not exist$`, testCtx.theFileShouldNotExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^the directory "([^"]*)" should exist$`, testCtx.theDirectoryShouldExist)
	sc.Step(`^the directory "([^"]*)" should contain (\d+) images?$`, testCtx.theDirectoryShouldContainImages)
	sc.Step(`^the directory "([^"]*)" should contain no images$`, testCtx.theDirectoryShouldContainNoImages)
}

// registerEnvironmentSteps registers environment configuration steps.
func (testCtx *TestContext) registerEnvironmentSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}

// registerHelpSteps registers help and documentation steps.
func (testCtx *TestContext) registerHelpSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain usage information$`, testCtx.theOutputShouldContainUsageInformation)
	sc.Step(`^the output should list available flags$`, testCtx.theOutputShouldListAvailableFlags)
	sc.Step(`^the output should list available subcommands$`, testCtx.theOutputShouldListAvailableSubcommands)
	sc.Step(`^global flags should be documented$`, testCtx.globalFlagsShouldBeDocumented)
	sc.Step(`^build information should be included$`, testCtx.buildInformationShouldBeIncluded)
	sc.Step(`^the processing should complete within timeout$`, testCtx.theProcessingShouldCompleteWithinTimeout)
}

// RegisterCommonSteps registers all common step definitions.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	testCtx.registerCommandSteps(sc)
	testCtx.registerOutputSteps(sc)
	testCtx.registerErrorSteps(sc)
	testCtx.registerFileSteps(sc)
	testCtx.registerEnvironmentSteps(sc)
	testCtx.registerHelpSteps(sc)
}
