package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/pkg/types"
)

func TestChannelNotifier_TimeoutBoundsWait(t *testing.T) {
	n := NewChannelNotifier()

	start := time.Now()
	err := n.Wait(context.Background(), types.QueueLlmRequest, 20*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestChannelNotifier_NotifyCollapses(t *testing.T) {
	n := NewChannelNotifier()
	ctx := context.Background()

	n.Notify(ctx, types.QueueLlmRequest)
	n.Notify(ctx, types.QueueLlmRequest)
	n.Notify(ctx, types.QueueLlmRequest)

	require.NoError(t, n.Wait(ctx, types.QueueLlmRequest, time.Second))

	start := time.Now()
	require.NoError(t, n.Wait(ctx, types.QueueLlmRequest, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "only one pending signal is kept")
}

func TestChannelNotifier_CancelEndsWait(t *testing.T) {
	n := NewChannelNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Wait(ctx, types.QueueBroadcast, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
}

type mockSQS struct {
	mu       sync.Mutex
	sent     []string
	inbox    []string
	deleted  int
	recvErr  error
	received int
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (m *mockSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received++
	if m.recvErr != nil {
		return nil, m.recvErr
	}
	out := &sqs.ReceiveMessageOutput{}
	for i, body := range m.inbox {
		out.Messages = append(out.Messages, sqstypes.Message{
			Body:          aws.String(body),
			ReceiptHandle: aws.String("rh-" + string(rune('a'+i))),
		})
	}
	m.inbox = nil
	return out, nil
}

func (m *mockSQS) DeleteMessage(_ context.Context, _ *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted++
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSNotifier_NotifyPublishes(t *testing.T) {
	client := &mockSQS{}
	n := NewSQSNotifier(client, "https://sqs.local/wake", nil)

	n.Notify(context.Background(), types.QueueDmApproval)

	assert.Equal(t, []string{"DM_APPROVAL"}, client.sent)
}

func TestSQSNotifier_WaitWakesOnRemoteSignal(t *testing.T) {
	client := &mockSQS{inbox: []string{"BROADCAST", "LLM_REQUEST"}}
	n := NewSQSNotifier(client, "https://sqs.local/wake", nil)
	ctx := context.Background()

	require.NoError(t, n.Wait(ctx, types.QueueLlmRequest, 5*time.Second))
	assert.Equal(t, 2, client.deleted)
	assert.Equal(t, 1, client.received)

	assert.True(t, n.tryLocal(types.QueueBroadcast), "other-type signals are forwarded locally")
}

func TestSQSNotifier_ReceiveErrorFallsBackToLocal(t *testing.T) {
	client := &mockSQS{recvErr: errors.New("throttled")}
	n := NewSQSNotifier(client, "https://sqs.local/wake", nil)

	start := time.Now()
	require.NoError(t, n.Wait(context.Background(), types.QueueLlmRequest, 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
