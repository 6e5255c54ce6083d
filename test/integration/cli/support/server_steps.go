package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cucumber/godog"
)

// theTransformationServerIsRunning mounts the real server routes on an
// httptest listener for the scenario.
func (testCtx *TestContext) theTransformationServerIsRunning() error {
	if testCtx.HTTPTestServer != nil {
		return nil
	}
	return testCtx.createTestHTTPServer()
}

// theServerIsNotAlreadyRunning ensures no server is running.
func (testCtx *TestContext) theServerIsNotAlreadyRunning() error {
	if testCtx.ServerProcess != nil || testCtx.HTTPTestServer != nil {
		return testCtx.StopServer()
	}
	return nil
}

// iStartTheServerWith starts the server process with the given command.
func (testCtx *TestContext) iStartTheServerWith(command string) error {
	return testCtx.StartServer(testCtx.substituteCommandVariables(command))
}

// iStopTheServer shuts the server process down.
func (testCtx *TestContext) iStopTheServer() error {
	return testCtx.StopServerProcess()
}

// theServerShouldStartOnPort verifies server starts on expected port.
func (testCtx *TestContext) theServerShouldStartOnPort(port int) error {
	if testCtx.ServerPort != port {
		return fmt.Errorf("expected server on port %d, but configured for port %d", port, testCtx.ServerPort)
	}

	// Verify server is actually responding
	if !testCtx.isServerHealthy() {
		return fmt.Errorf("server is not responding on port %d", port)
	}

	return nil
}

// iSendSignalToTheServer sends a signal to the running server process.
func (testCtx *TestContext) iSendSignalToTheServer(signalName string) error {
	var signal os.Signal

	switch strings.ToUpper(signalName) {
	case "SIGTERM":
		signal = syscall.SIGTERM
	case "SIGINT":
		signal = syscall.SIGINT
	case "SIGHUP":
		signal = syscall.SIGHUP
	default:
		return fmt.Errorf("unsupported signal: %s", signalName)
	}

	return testCtx.SendSignalToServer(signal)
}

// theServerShouldShutDownGracefully waits for the server to stop
// answering health checks, then reaps the process and reports its exit.
func (testCtx *TestContext) theServerShouldShutDownGracefully() error {
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if !testCtx.isServerHealthy() {
			return testCtx.StopServerProcess()
		}
		time.Sleep(100 * time.Millisecond)
	}

	return errors.New("server is still responding after shutdown signal")
}

// recordResponse stores an HTTP exchange for later verification steps.
func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing response body: %v\n", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = map[string]string{}
	for name := range resp.Header {
		testCtx.LastHTTPHeaders[name] = resp.Header.Get(name)
	}
	return nil
}

// iSendAGETRequestTo issues a GET against the running server.
func (testCtx *TestContext) iSendAGETRequestTo(endpoint string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(testCtx.GetServerURL() + endpoint)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	return testCtx.recordResponse(resp)
}

// postMultipart uploads the given named payloads as the "images" field.
func (testCtx *TestContext) postMultipart(endpoint string, payloads map[string][]byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for name, data := range payloads {
		part, err := writer.CreateFormFile("images", name)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("failed to write file data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := testCtx.GetServerURL() + endpoint
	client := &http.Client{Timeout: 30 * time.Second}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	return testCtx.recordResponse(resp)
}

// iUploadImagesTo posts generated photos to the given endpoint.
func (testCtx *TestContext) iUploadImagesTo(count int, endpoint string) error {
	payloads := make(map[string][]byte, count)
	for i := 1; i <= count; i++ {
		var buf bytes.Buffer
		if err := png.Encode(&buf, generateSamplePhoto(i)); err != nil {
			return fmt.Errorf("failed to encode upload image: %w", err)
		}
		payloads[fmt.Sprintf("upload_%02d.png", i)] = buf.Bytes()
	}
	return testCtx.postMultipart(endpoint, payloads)
}

// iUploadACorruptImageTo posts a payload with an image name but no
// decodable pixel data.
func (testCtx *TestContext) iUploadACorruptImageTo(endpoint string) error {
	return testCtx.postMultipart(endpoint, map[string][]byte{
		"broken.png": []byte("not image data"),
	})
}

// iPostWithoutFilesTo posts an empty multipart form.
func (testCtx *TestContext) iPostWithoutFilesTo(endpoint string) error {
	return testCtx.postMultipart(endpoint, nil)
}

// iSubmitABatchJobForTheSourceDirectory creates an asynchronous batch
// over the scenario's source directory.
func (testCtx *TestContext) iSubmitABatchJobForTheSourceDirectory() error {
	if testCtx.SourceDir == "" {
		return errors.New("no source directory prepared for the scenario")
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"input_dir":    testCtx.SourceDir,
		"output_dir":   testCtx.OutputDir,
		"keep_sources": true,
		"seed":         7,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal batch request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(testCtx.GetServerURL()+"/batch", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create batch job: %w", err)
	}
	if err := testCtx.recordResponse(resp); err != nil {
		return err
	}

	// Remember the job ID for follow-up steps
	var status map[string]interface{}
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &status); err != nil {
		return fmt.Errorf("failed to parse job status: %w", err)
	}
	id, ok := status["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("batch response carries no job id: %s", testCtx.LastHTTPResponse)
	}
	testCtx.LastJobID = id
	return nil
}

// iWaitForTheBatchJobToComplete polls the job until it leaves the
// running state.
func (testCtx *TestContext) iWaitForTheBatchJobToComplete() error {
	if testCtx.LastJobID == "" {
		return errors.New("no batch job was submitted")
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if err := testCtx.iSendAGETRequestTo("/batch/" + testCtx.LastJobID); err != nil {
			return err
		}

		var status map[string]interface{}
		if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &status); err != nil {
			return fmt.Errorf("failed to parse job status: %w", err)
		}
		if state, _ := status["status"].(string); state != "" && state != "running" {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("batch job %s did not complete in time", testCtx.LastJobID)
}

// iRequestTheBatchJobStatus fetches the submitted job's status.
func (testCtx *TestContext) iRequestTheBatchJobStatus() error {
	if testCtx.LastJobID == "" {
		return errors.New("no batch job was submitted")
	}
	return testCtx.iSendAGETRequestTo("/batch/" + testCtx.LastJobID)
}

// iRequestAnUnknownBatchJob fetches a job ID that does not exist.
func (testCtx *TestContext) iRequestAnUnknownBatchJob() error {
	return testCtx.iSendAGETRequestTo("/batch/no-such-job")
}

// theResponseStatusShouldBe verifies HTTP response status.
func (testCtx *TestContext) theResponseStatusShouldBe(expectedStatus int) error {
	if testCtx.LastHTTPStatusCode == 0 {
		return errors.New("no HTTP response recorded")
	}
	if testCtx.LastHTTPStatusCode != expectedStatus {
		return fmt.Errorf("expected status %d, got %d\nResponse: %s",
			expectedStatus, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseShouldContain verifies response body content.
func (testCtx *TestContext) theResponseShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, expectedText) {
		return fmt.Errorf("response does not contain '%s'\nActual response: %s",
			expectedText, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseShouldBeValidJSON verifies the response body parses as JSON.
func (testCtx *TestContext) theResponseShouldBeValidJSON() error {
	var js json.RawMessage
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &js); err != nil {
		return fmt.Errorf("response is not valid JSON: %w\nResponse: %s", err, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseJSONShouldContain verifies a field exists in the response.
func (testCtx *TestContext) theResponseJSONShouldContain(field string) error {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w\nResponse: %s", err, testCtx.LastHTTPResponse)
	}
	return testCtx.checkFieldExists(data, field)
}

// theCORSHeadersShouldAllow verifies the allowed origin header.
func (testCtx *TestContext) theCORSHeadersShouldAllow(origin string) error {
	got, ok := testCtx.LastHTTPHeaders["Access-Control-Allow-Origin"]
	if !ok {
		return errors.New("response carries no Access-Control-Allow-Origin header")
	}
	if got != origin {
		return fmt.Errorf("expected allowed origin %q, got %q", origin, got)
	}
	return nil
}

// RegisterServerSteps registers server scenario steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the transformation server is running$`, testCtx.theTransformationServerIsRunning)
	sc.Step(`^the server is not already running$`, testCtx.theServerIsNotAlreadyRunning)
	sc.Step(`^I start the server with "([^"]*)"$`, testCtx.iStartTheServerWith)
	sc.Step(`^I stop the server$`, testCtx.iStopTheServer)
	sc.Step(`^the server should start on port (\d+)$`, testCtx.theServerShouldStartOnPort)
	sc.Step(`^I send ([A-Z]+) to the server$`, testCtx.iSendSignalToTheServer)
	sc.Step(`^the server should shut down gracefully$`, testCtx.theServerShouldShutDownGracefully)

	sc.Step(`^I send a GET request to "([^"]*)"$`, testCtx.iSendAGETRequestTo)
	sc.Step(`^I upload (\d+) images to "([^"]*)"$`, testCtx.iUploadImagesTo)
	sc.Step(`^I upload a corrupt image to "([^"]*)"$`, testCtx.iUploadACorruptImageTo)
	sc.Step(`^I post an empty form to "([^"]*)"$`, testCtx.iPostWithoutFilesTo)

	sc.Step(`^I submit a batch job for the source directory$`, testCtx.iSubmitABatchJobForTheSourceDirectory)
	sc.Step(`^I wait for the batch job to complete$`, testCtx.iWaitForTheBatchJobToComplete)
	sc.Step(`^I request the batch job status$`, testCtx.iRequestTheBatchJobStatus)
	sc.Step(`^I request an unknown batch job$`, testCtx.iRequestAnUnknownBatchJob)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response should be valid JSON$`, testCtx.theResponseShouldBeValidJSON)
	sc.Step(`^the response JSON should contain "([^"]*)"$`, testCtx.theResponseJSONShouldContain)
	sc.Step(`^the CORS headers should allow "([^"]*)"$`, testCtx.theCORSHeadersShouldAllow)
}
