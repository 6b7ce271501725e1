package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func getAddr() (string, error) {
	state, err := getState()
	if err != nil {
		return "", err
	}
	addr, ok := state["addr"]
	if !ok || len(addr) <= 0 {
		return "", errors.New("set addr with `config set addr`")
	}
	return addr, nil
}

// get queries the daemon http interface and decodes the JSON response.
func get(path string) (map[string]interface{}, error) {
	addr, err := getAddr()
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Get(fmt.Sprintf("http://%s%s", addr, path))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to feederd: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unable to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if msg, ok := data["error"].(string); ok {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return data, nil
}
