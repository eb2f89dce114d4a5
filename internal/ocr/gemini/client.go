package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/ocrbatch/internal/common"
	"github.com/joseph-ayodele/ocrbatch/internal/ocr"
)

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Recognize implements ocr.Recognizer with one generateContent call.
func (c *Client) Recognize(ctx context.Context, payload []byte, pageLabel string) ocr.Outcome {
	start := time.Now()
	logger := common.LoggerFromContext(ctx, c.logger)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: c.cfg.Prompt},
				{InlineData: &inlineData{
					MIMEType: c.cfg.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(payload),
				}},
			},
		}},
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}

	logger.Info("ocr.recognize.start", "page", pageLabel, "model", c.cfg.Model, "payload_bytes", len(payload))

	raw, httpStatus, err := ocr.SendJSON(ctx, c.http, endpoint, body, headers, logger)
	if err != nil {
		var callErr error
		if httpStatus == 0 {
			callErr = transportError(err)
		} else {
			callErr = responseError(httpStatus, raw)
		}
		out := ocr.Classify(callErr)
		logger.Warn("ocr.recognize.failed",
			"page", pageLabel,
			"outcome", out.Kind.String(),
			"error", callErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return out
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logger.Error("ocr.recognize.decode_error", "page", pageLabel, "error", err, "raw_bytes", len(raw))
		return ocr.Empty(fmt.Sprintf("decode response: %v", err))
	}

	out := ocr.ClassifyText(resp.text())
	if out.Kind == ocr.KindEmpty && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		out.Reason = "blocked: " + resp.PromptFeedback.BlockReason
	}
	logger.Info("ocr.recognize.ok",
		"page", pageLabel,
		"outcome", out.Kind.String(),
		"text_len", len(out.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// text concatenates the text parts of the first candidate.
func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func responseError(httpStatus int, raw []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || (env.Error.Status == "" && env.Error.Message == "") {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return ocr.FromHTTP(httpStatus, "", msg)
	}
	return ocr.FromHTTP(httpStatus, env.Error.Status, env.Error.Message)
}

func transportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}
