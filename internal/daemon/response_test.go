package daemon

import (
	"encoding/json"
	"testing"
)

func TestResponseToJSON(t *testing.T) {
	var response Response
	response.AddMessage("frpc started", "INFO")
	response.AddMessage("something odd", "WARN")
	response.AddData(map[string]string{"state": "running"})

	var decoded Response
	if err := json.Unmarshal([]byte(response.ToJSON()), &decoded); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}

	if len(decoded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(decoded.Messages))
	}
	if decoded.Messages[0].Message != "frpc started" || decoded.Messages[0].Status != "INFO" {
		t.Errorf("unexpected first message: %+v", decoded.Messages[0])
	}
	if decoded.Messages[1].Status != "WARN" {
		t.Errorf("unexpected second message: %+v", decoded.Messages[1])
	}

	data, ok := decoded.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected data map, got %T", decoded.Data)
	}
	if data["state"] != "running" {
		t.Errorf("unexpected data: %+v", data)
	}
}

func TestResponseEmptyDataOmitted(t *testing.T) {
	var response Response
	response.AddMessage("ok", "INFO")

	raw := map[string]interface{}{}
	if err := json.Unmarshal([]byte(response.ToJSON()), &raw); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if _, present := raw["data"]; present {
		t.Error("expected data to be omitted when unset")
	}
}
