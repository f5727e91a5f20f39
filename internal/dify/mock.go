package dify

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var mockReplies = []string{
	"I have reviewed the uploaded files. Please describe the kind of test cases and scenarios you want to cover.",
	"Understood. For the login flow, which scenarios matter most: happy path, wrong password, missing account, captcha?",
	"Good. A few more details: which browsers should be covered, and do you need mobile coverage as well?",
	"Almost there. Should the cases use real test accounts or synthetic data? Reply 'start generation' when you are ready.",
}

const mockReadyReply = "Okay, I have enough context now. Ready to generate the test cases."

const mockGenerationAnswer = `[{"id":"TC001","name":"User login succeeds","preconditions":[{"id":"pre1","name":"Account exists","components":[{"id":"prec1","type":"api","name":"Check user exists","params":{"method":"GET","url":"/api/users/check"}}]}],"steps":[{"id":"s1","name":"Open login page","components":[{"id":"c1","type":"api","name":"GET /login","params":{"method":"GET","url":"/login"}}]},{"id":"s2","name":"Submit credentials","components":[{"id":"c2","type":"input","name":"Enter username","params":{"selector":"#username","value":"testuser"}},{"id":"c3","type":"button","name":"Click login","params":{"selector":"#login-btn","action":"click"}}]}],"expectedResults":[{"id":"exp1","name":"Dashboard is shown","components":[{"id":"expc1","type":"assert","name":"URL equals /dashboard","params":{"type":"equals","expected":"/dashboard"}}]}]},{"id":"TC002","name":"User login fails with wrong password","steps":[{"id":"s3","name":"Submit wrong password","components":[{"id":"c4","type":"input","name":"Enter wrong password","params":{"selector":"#password","value":"wrong"}}]}],"expectedResults":[{"id":"exp2","name":"Error message is shown","components":[{"id":"expc2","type":"assert","name":"Error text present","params":{"type":"contains","expected":"invalid password"}}]}]}]`

// MockClient is a deterministic local agent used when no Dify credentials
// are configured and in tests. It tracks the conversation ids it issued and
// rejects unknown ones the same way the hosted API rejects expired ones.
type MockClient struct {
	mu    sync.Mutex
	turns map[string]int
}

func NewMockClient() *MockClient {
	return &MockClient{turns: make(map[string]int)}
}

func (c *MockClient) SendChatMessage(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	select {
	case <-ctx.Done():
		return ChatResponse{}, ctx.Err()
	default:
	}

	convID, turn, err := c.advance(req.ConversationID)
	if err != nil {
		return ChatResponse{}, err
	}

	return ChatResponse{
		Answer:         mockAnswer(req, turn),
		ConversationID: convID,
		MessageID:      "mock-msg-" + uuid.NewString()[:8],
	}, nil
}

func (c *MockClient) StreamChatMessage(ctx context.Context, req ChatRequest, onEvent EventHandler) (ChatResponse, error) {
	resp, err := c.SendChatMessage(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}

	if onEvent != nil {
		for _, chunk := range chunkText(resp.Answer, 24) {
			ev := StreamEvent{
				Event:          "message",
				Answer:         chunk,
				ConversationID: resp.ConversationID,
				MessageID:      resp.MessageID,
			}
			if err := onEvent(ev); err != nil {
				return ChatResponse{}, err
			}
		}
		end := StreamEvent{
			Event:          "message_end",
			ConversationID: resp.ConversationID,
			MessageID:      resp.MessageID,
		}
		if err := onEvent(end); err != nil {
			return ChatResponse{}, err
		}
	}

	return resp, nil
}

func (c *MockClient) Ping(context.Context) error { return nil }

func (c *MockClient) advance(convID string) (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if convID == "" {
		convID = "mock-conv-" + uuid.NewString()[:8]
		c.turns[convID] = 0
	} else if _, ok := c.turns[convID]; !ok {
		return "", 0, &APIError{
			Kind:       KindConversationNotFound,
			StatusCode: 404,
			Code:       "conversation_not_exists",
			Message:    "Conversation Not Exists.",
		}
	}

	turn := c.turns[convID]
	c.turns[convID]++
	return convID, turn, nil
}

func mockAnswer(req ChatRequest, turn int) string {
	query := strings.ToLower(req.Query)
	switch {
	case req.Inputs["task"] == "generate":
		return mockGenerationAnswer
	case strings.Contains(query, "start generation") || strings.Contains(query, "开始生成"):
		return mockReadyReply
	default:
		return mockReplies[turn%len(mockReplies)]
	}
}

func chunkText(s string, size int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
