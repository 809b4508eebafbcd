// Command recognizer-stub is a local stand-in for the Recognizer
// service: it accepts the bridge's multipart turn requests, logs what
// arrived and answers with a canned response. Useful for end-to-end
// testing without the real backend.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type turnContext struct {
	SessionID    string            `json:"session_id"`
	TurnID       string            `json:"turn_id"`
	Transcript   string            `json:"transcript"`
	QueryText    string            `json:"query_text"`
	Language     string            `json:"language"`
	CloudOffload bool              `json:"cloud_offload"`
	AudioMS      int64             `json:"audio_ms"`
	Metadata     map[string]string `json:"metadata"`
}

type action struct {
	Type       string            `json:"action_type"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Priority   string            `json:"priority,omitempty"`
}

type response struct {
	Response   string            `json:"response"`
	Transcript string            `json:"transcript,omitempty"`
	Actions    []action          `json:"actions,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func completeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	var turn turnContext
	if err := json.Unmarshal([]byte(r.FormValue("turn")), &turn); err != nil {
		http.Error(w, "Error parsing turn context", http.StatusBadRequest)
		return
	}

	audioSize := filePartSize(r, "audio")
	frameSize := filePartSize(r, "frame")

	log.Printf("TURN REQUEST: session=%s turn=%s", turn.SessionID, turn.TurnID)
	log.Printf("  transcript: %q", turn.Transcript)
	log.Printf("  query_text: %q", turn.QueryText)
	log.Printf("  language: %s, cloud_offload: %v", turn.Language, turn.CloudOffload)
	log.Printf("  audio: %d ms, %d bytes wav", turn.AudioMS, audioSize)
	log.Printf("  frame: %d bytes", frameSize)

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	query := turn.QueryText
	if query == "" {
		query = turn.Transcript
	}

	resp := response{
		Response: fmt.Sprintf("Stub response for: %s", query),
		Actions: []action{
			{
				Type:       "display_text",
				Parameters: map[string]string{"text": query},
				Priority:   "normal",
			},
		},
		Metadata: map[string]string{"recognizer": "stub"},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)

	log.Printf("TURN RESPONSE SENT: %q", resp.Response)
}

func filePartSize(r *http.Request, field string) int {
	file, _, err := r.FormFile(field)
	if err != nil {
		return 0
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return 0
	}
	return len(data)
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	flag.Parse()

	http.HandleFunc("/v1/complete", completeHandler)

	log.Printf("Recognizer stub starting on %s", *addr)
	log.Printf("Endpoint: http://localhost%s/v1/complete", *addr)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
