package engine_test

import (
	"strings"
	"testing"
)

func TestSendMessageGating(t *testing.T) {
	env := newTestEnv(t)
	j := budgetedJob(t, env, 10000)
	if _, err := env.Engine.SendMessage(env.Ctx, employer, j.ID, "hello"); err == nil {
		t.Fatalf("expected conflict before allocation")
	}
	allocated, _ := allocatedJob(t, env, 5000)
	if _, err := env.Engine.SendMessage(env.Ctx, rival, allocated.ID, "hi"); err == nil {
		t.Fatalf("expected forbidden for outsider")
	}
	if _, err := env.Engine.SendMessage(env.Ctx, employer, allocated.ID, "   "); err == nil {
		t.Fatalf("expected validation error for blank body")
	}
	if _, err := env.Engine.SendMessage(env.Ctx, employer, allocated.ID, strings.Repeat("x", 5000)); err == nil {
		t.Fatalf("expected validation error for oversized body")
	}
	m, err := env.Engine.SendMessage(env.Ctx, employer, allocated.ID, "  kickoff call tomorrow  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Body != "kickoff call tomorrow" {
		t.Fatalf("expected trimmed body, got %q", m.Body)
	}
	if m.ReceiverID != freelancer.ID {
		t.Fatalf("expected receiver %s, got %s", freelancer.ID, m.ReceiverID)
	}
	reply, err := env.Engine.SendMessage(env.Ctx, freelancer, allocated.ID, "sounds good")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ReceiverID != employer.ID {
		t.Fatalf("expected reply addressed to employer")
	}
}

func TestJobMessagesMarksRead(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 5000)
	if _, err := env.Engine.SendMessage(env.Ctx, employer, j.ID, "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, employer, j.ID, "two"); err != nil {
		t.Fatal(err)
	}
	msgs, err := env.Engine.JobMessages(env.Ctx, freelancer, j.ID)
	if err != nil {
		t.Fatalf("read thread: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.ReceiverID == freelancer.ID && !m.IsRead {
			t.Fatalf("expected incoming message marked read")
		}
	}
	unread, err := env.Engine.Repo.CountUnread(env.Ctx, j.ID, freelancer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unread != 0 {
		t.Fatalf("expected 0 unread after reading, got %d", unread)
	}
	if _, err := env.Engine.JobMessages(env.Ctx, rival, j.ID); err == nil {
		t.Fatalf("expected forbidden for outsider thread read")
	}
	// admin can inspect without flipping read state
	if _, err := env.Engine.JobMessages(env.Ctx, admin, j.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestConversations(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 5000)
	if _, err := env.Engine.SendMessage(env.Ctx, employer, j.ID, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, employer, j.ID, "latest"); err != nil {
		t.Fatal(err)
	}
	convs, err := env.Engine.Conversations(env.Ctx, freelancer, "")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	c := convs[0]
	if c.JobID != j.ID || c.CounterpartID != employer.ID {
		t.Fatalf("unexpected conversation %+v", c)
	}
	if c.UnreadCount != 2 {
		t.Fatalf("expected 2 unread, got %d", c.UnreadCount)
	}
	if c.LatestMessage == nil || c.LatestMessage.Body != "latest" {
		t.Fatalf("expected latest message, got %+v", c.LatestMessage)
	}
	// the employer's inbox mirrors the thread from the other side
	empConvs, err := env.Engine.Conversations(env.Ctx, employer, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(empConvs) != 1 || empConvs[0].CounterpartID != freelancer.ID {
		t.Fatalf("unexpected employer inbox %+v", empConvs)
	}
	if empConvs[0].UnreadCount != 0 {
		t.Fatalf("employer sent everything, expected 0 unread")
	}
	if _, err := env.Engine.Conversations(env.Ctx, freelancer, employer.ID); err == nil {
		t.Fatalf("expected forbidden reading another inbox")
	}
	if _, err := env.Engine.Conversations(env.Ctx, admin, freelancer.ID); err != nil {
		t.Fatalf("admin inbox inspection: %v", err)
	}
}

func TestConversationWithEmptyThread(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 5000)
	convs, err := env.Engine.Conversations(env.Ctx, freelancer, "")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected allocation to open a conversation")
	}
	if convs[0].LatestMessage != nil || convs[0].UnreadCount != 0 {
		t.Fatalf("expected empty thread, got %+v", convs[0])
	}
	_ = j
}
