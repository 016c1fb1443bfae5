package gateway

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives needed at the adapter boundary: Say for
// reading the notification, Gather for DTMF confirmation, Hangup.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Loop    int      `xml:"loop,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName   xml.Name `xml:"Gather"`
	NumDigits int      `xml:"numDigits,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
	Action    string   `xml:"action,attr,omitempty"`
	Method    string   `xml:"method,attr,omitempty"`
	Verbs     []any    `xml:",any"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// VoicePrompt describes what the answered callee hears.
type VoicePrompt struct {
	Text string

	// GatherDigit plays the prompt inside a single-digit Gather whose
	// result posts to GatherAction.
	GatherDigit  bool
	GatherAction string
}

// RenderVoicePrompt maps a VoicePrompt to TwiML. The message is read
// twice so a callee who picks up late still hears it in full.
func RenderVoicePrompt(p VoicePrompt) (string, error) {
	if strings.TrimSpace(p.Text) == "" {
		return "", errors.New("gateway: prompt text required")
	}

	var r twimlResponse
	say := twimlSay{Text: p.Text, Loop: 2}
	if p.GatherDigit {
		r.Verbs = append(r.Verbs, twimlGather{
			NumDigits: 1,
			Timeout:   10,
			Action:    p.GatherAction,
			Method:    "POST",
			Verbs:     []any{say},
		})
		// Fall through to hangup if no digit was pressed.
		r.Verbs = append(r.Verbs, twimlHangup{})
	} else {
		r.Verbs = append(r.Verbs, say, twimlHangup{})
	}
	return encodeTwiML(r)
}

// RenderConfirmation acknowledges a captured digit and ends the call.
func RenderConfirmation() (string, error) {
	var r twimlResponse
	r.Verbs = append(r.Verbs, twimlSay{Text: "Thank you. Your confirmation has been recorded."}, twimlHangup{})
	return encodeTwiML(r)
}

func encodeTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
