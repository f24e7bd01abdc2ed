package message

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	original := NewData("trade", "trade", 3, 2023, map[string]Envelope{
		"consumption": {Data: map[string]float64{"us": 1.5, "mx": 2.25}, Granularity: "country"},
	}, 123.456)

	b, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.Source != original.Source || got.Schema != original.Schema || got.Incstep != original.Incstep {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, original)
	}
	if got.Payload["consumption"].Data["us"] != 1.5 {
		t.Errorf("round trip payload mismatch: %+v", got.Payload)
	}
}

func TestNewStatus(t *testing.T) {
	m := NewStatus("population", 4, 2024, StatusReady, 10.0)
	if m.Signal != SignalStatus {
		t.Errorf("Signal = %v, want status", m.Signal)
	}
	if m.Status != StatusReady || m.Incstep != 4 || m.Year != 2024 {
		t.Errorf("unexpected status message: %+v", m)
	}
	if m.InitialYear != nil {
		t.Error("NewStatus should not set InitialYear")
	}
}

func TestNewBrokerStatusSetsInitialYear(t *testing.T) {
	m := NewBrokerStatus("broker", 1, 2020, StatusBooted, 2019, 1.0)
	if m.InitialYear == nil || *m.InitialYear != 2019 {
		t.Errorf("InitialYear = %v, want 2019", m.InitialYear)
	}
}

func TestNewIncrement(t *testing.T) {
	m := NewIncrement("broker", 2, 2021, StatusBooted, 1.0)
	if m.Signal != SignalIncrement {
		t.Errorf("Signal = %v, want increment", m.Signal)
	}
}

func TestNewFileStringAndFileBytes(t *testing.T) {
	s := NewFileString("trade", "report.html", 1, 2020, "<html></html>", 1.0)
	if s.Signal != SignalFileStr || s.Name != "report.html" || s.FilePayload != "<html></html>" {
		t.Errorf("unexpected file_string message: %+v", s)
	}

	bMsg := NewFileBytes("trade", "chart.png", 1, 2020, "YWJj", 1.0)
	if bMsg.Signal != SignalFileBytes || bMsg.FilePayload != "YWJj" {
		t.Errorf("unexpected file_bytes message: %+v", bMsg)
	}
}

func TestDataPayload(t *testing.T) {
	m := NewData("trade", "trade", 1, 2020, map[string]Envelope{
		"gdp_change": {Data: map[string]float64{"us": 0.01}, Granularity: "country"},
	}, 1.0)
	payload := m.DataPayload()
	if payload["gdp_change"].Data["us"] != 0.01 {
		t.Errorf("DataPayload() = %+v", payload)
	}
}

func TestUnmarshalInvalidJSON(t *testing.T) {
	if _, err := Unmarshal([]byte("not json")); err == nil {
		t.Error("expected an error unmarshalling invalid JSON")
	}
}
