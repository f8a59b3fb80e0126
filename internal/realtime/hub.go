// Package realtime — канал вещания: WebSocket-подключения, fan-out событий по
// участникам чатов и серверная половина двойной записи сообщений.
package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bandhannova07/Bringlare-Chat/internal/coordinator"
	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
	"github.com/bandhannova07/Bringlare-Chat/internal/presence"
	"github.com/bandhannova07/Bringlare-Chat/internal/repository"
)

// PushNotifier отправляет пуш-уведомления. Если nil — пуши не отправляются.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int

	chatRepo   *repository.ChatRepository
	msgRepo    *repository.MessageRepository
	userRepo   *repository.UserRepository
	reactRepo  *repository.ReactionRepository
	presence   presence.Store
	pushClient PushNotifier
	dispatcher *coordinator.Dispatcher

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Локальные подписки (in-process): сессии координатора и тесты.
	subMu   sync.Mutex
	subs    map[string]map[int]func(model.Message)
	nextSub int
}

func NewHub(
	chatRepo *repository.ChatRepository,
	msgRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	reactRepo *repository.ReactionRepository,
	presenceStore presence.Store,
	maxConns int,
	pushClient PushNotifier,
) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	h := &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		chatRepo:   chatRepo,
		msgRepo:    msgRepo,
		userRepo:   userRepo,
		reactRepo:  reactRepo,
		presence:   presenceStore,
		pushClient: pushClient,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		subs:       make(map[string]map[int]func(model.Message)),
	}
	h.dispatcher = coordinator.NewDispatcher(h, msgRepo)
	return h
}

// ConfigureDispatch переопределяет политику ретраев durable-записи (из конфигурации).
func (h *Hub) ConfigureDispatch(maxAttempts int, baseBackoff time.Duration) {
	h.dispatcher.WithRetryPolicy(maxAttempts, baseBackoff)
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presence.Heartbeat(ctx, c.userID); err != nil {
		logger.Errorf("ws presence heartbeat user=%s: %v", c.userID, err)
	}
	if err := h.userRepo.SetOnline(ctx, c.userID, true); err != nil {
		logger.Errorf("ws set online user=%s: %v", c.userID, err)
	}
	h.broadcastUserStatus(c.userID, true)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()

	if lastClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.presence.SetOffline(ctx, c.userID); err != nil {
			logger.Errorf("ws presence offline user=%s: %v", c.userID, err)
		}
		if err := h.userRepo.SetOnline(ctx, c.userID, false); err != nil {
			logger.Errorf("ws set offline user=%s: %v", c.userID, err)
		}
		h.broadcastUserStatus(c.userID, false)
	}
}

// Publish рассылает сообщение как событие new_message всем активным участникам
// чата и локальным подписчикам. Путь fire-and-forget двойной записи.
func (h *Hub) Publish(ctx context.Context, chatID string, m model.Message) error {
	memberIDs, err := h.chatRepo.GetParticipantIDs(ctx, chatID)
	if err != nil {
		return err
	}
	out := OutgoingMessage{Type: EventNewMessage, Payload: m}
	for _, uid := range memberIDs {
		h.sendToUser(uid, out)
	}

	h.subMu.Lock()
	fns := make([]func(model.Message), 0, len(h.subs[chatID]))
	for _, fn := range h.subs[chatID] {
		fns = append(fns, fn)
	}
	h.subMu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
	return nil
}

// Subscribe регистрирует in-process подписчика на события чата.
// Отмена явная: после Cancel колбэк не вызывается.
func (h *Hub) Subscribe(chatID string, fn func(model.Message)) coordinator.Subscription {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	id := h.nextSub
	h.nextSub++
	if h.subs[chatID] == nil {
		h.subs[chatID] = make(map[int]func(model.Message))
	}
	h.subs[chatID][id] = fn
	return &hubSubscription{hub: h, chatID: chatID, id: id}
}

type hubSubscription struct {
	hub    *Hub
	chatID string
	id     int
}

func (s *hubSubscription) Cancel() {
	s.hub.subMu.Lock()
	defer s.hub.subMu.Unlock()
	if m, ok := s.hub.subs[s.chatID]; ok {
		delete(m, s.id)
		if len(m) == 0 {
			delete(s.hub.subs, s.chatID)
		}
	}
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventNewMessage:
		h.handleNewMessage(ctx, c, msg)
	case EventTyping:
		h.handleTyping(ctx, c, msg)
	case EventMessageRead:
		h.handleMessageRead(ctx, c, msg)
	case EventReactionAdded:
		h.handleAddReaction(ctx, c, msg)
	case EventReactionRemoved:
		h.handleRemoveReaction(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

// handleNewMessage — двойная запись: сначала вещание провизорной версии всем
// участникам, затем durable-вставка с ретраями. Отправитель получает либо
// message_persisted с серверными id и временем, либо message_persist_failed.
func (h *Hub) handleNewMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleNewMessage", time.Now())()
	content := strings.TrimSpace(msg.Content)
	if msg.ChatID == "" || (content == "" && msg.FileURL == "") {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "chat_id and content required"})
		return
	}
	kind := msg.Kind
	if kind == "" {
		kind = model.MessageKindText
	}
	if !kind.Valid() {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown message kind"})
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	isMember, err := h.chatRepo.IsParticipant(checkCtx, msg.ChatID, c.userID)
	cancel()
	if err != nil {
		logger.Errorf("ws check membership chat=%s user=%s: %v", msg.ChatID, c.userID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "internal error"})
		return
	}
	if !isMember {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not a member"})
		return
	}

	var replyToID *string
	if msg.ReplyToID != "" {
		replyToID = &msg.ReplyToID
	}
	provisionalID := msg.ProvisionalID
	if provisionalID == "" {
		provisionalID = uuid.New().String()
	}

	// Нормализация имени файла: "+" часто приходит вместо пробела (URL-кодирование), сохраняем в БД с пробелами (UTF-8).
	fileName := strings.TrimSpace(strings.ReplaceAll(msg.FileName, "+", " "))
	m := &model.Message{
		ProvisionalID: provisionalID,
		ChatID:        msg.ChatID,
		SenderID:      c.userID,
		Content:       content,
		Kind:          kind,
		FileURL:       msg.FileURL,
		FileName:      fileName,
		FileSize:      msg.FileSize,
		Status:        model.MessageStatusSent,
		ReplyToID:     replyToID,
		CreatedAt:     time.Now().UTC(),
	}

	senderCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	sender, err := h.userRepo.GetByID(senderCtx, c.userID)
	cancel()
	if err != nil {
		logger.Errorf("ws get sender user=%s: %v", c.userID, err)
	} else {
		pub := sender.ToPublic()
		m.Sender = &pub
	}

	outcome := h.dispatcher.Dispatch(ctx, m)
	switch {
	case outcome.Persisted():
		h.confirmPersisted(ctx, c, m)
	case outcome == coordinator.RealtimeOnlySucceeded:
		logger.Errorf("ws message broadcast without durable record chat=%s provisional=%s", m.ChatID, m.ProvisionalID)
		h.sendToClient(c, OutgoingMessage{Type: EventMessagePersistFailed, Payload: MessagePersistFailedPayload{
			ProvisionalID: m.ProvisionalID,
			ChatID:        m.ChatID,
		}})
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to send message"})
	}
}

// confirmPersisted рассылает подтверждение durable-записи и пуши получателям.
func (h *Hub) confirmPersisted(ctx context.Context, c *Client, m *model.Message) {
	memberIDs, err := h.chatRepo.GetParticipantIDs(ctx, m.ChatID)
	if err != nil {
		logger.Errorf("ws get members chat=%s: %v", m.ChatID, err)
		return
	}

	serverAt := m.CreatedAt
	if m.ServerAt != nil {
		serverAt = *m.ServerAt
	}
	out := OutgoingMessage{Type: EventMessagePersisted, Payload: MessagePersistedPayload{
		ProvisionalID: m.ProvisionalID,
		MessageID:     m.ID,
		ChatID:        m.ChatID,
		ServerAt:      serverAt,
	}}
	for _, uid := range memberIDs {
		h.sendToUser(uid, out)
	}

	// Пуш-уведомления получателям (кроме отправителя)
	if h.pushClient != nil {
		senderName := ""
		if m.Sender != nil {
			senderName = m.Sender.DisplayName
		}
		if senderName == "" {
			senderName = "Сообщение"
		}
		body := m.Content
		if m.IsFile() && body == "" {
			body = "Вложение"
		}
		if len(body) > 120 {
			body = body[:117] + "..."
		}
		data := map[string]string{"chat_id": m.ChatID, "message_id": m.ID}
		for _, uid := range memberIDs {
			if uid != c.userID {
				uid := uid
				go h.pushClient.Notify(context.Background(), uid, senderName, body, data)
			}
		}
	}
}

func (h *Hub) handleAddReaction(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.MessageID == "" || msg.Emoji == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	original, err := h.msgRepo.GetByID(ctx, msg.MessageID)
	if err != nil {
		return
	}

	if err := h.reactRepo.Add(ctx, msg.MessageID, c.userID, msg.Emoji); err != nil {
		logger.Errorf("ws add reaction %s: %v", msg.MessageID, err)
		return
	}

	memberIDs, err := h.chatRepo.GetParticipantIDs(ctx, original.ChatID)
	if err != nil {
		return
	}

	out := OutgoingMessage{Type: EventReactionAdded, Payload: ReactionPayload{
		MessageID: msg.MessageID,
		ChatID:    original.ChatID,
		UserID:    c.userID,
		Emoji:     msg.Emoji,
	}}
	for _, uid := range memberIDs {
		h.sendToUser(uid, out)
	}
}

func (h *Hub) handleRemoveReaction(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.MessageID == "" || msg.Emoji == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	original, err := h.msgRepo.GetByID(ctx, msg.MessageID)
	if err != nil {
		return
	}

	if err := h.reactRepo.Remove(ctx, msg.MessageID, c.userID, msg.Emoji); err != nil {
		logger.Errorf("ws remove reaction %s: %v", msg.MessageID, err)
		return
	}

	memberIDs, err := h.chatRepo.GetParticipantIDs(ctx, original.ChatID)
	if err != nil {
		return
	}

	out := OutgoingMessage{Type: EventReactionRemoved, Payload: ReactionPayload{
		MessageID: msg.MessageID,
		ChatID:    original.ChatID,
		UserID:    c.userID,
		Emoji:     msg.Emoji,
	}}
	for _, uid := range memberIDs {
		h.sendToUser(uid, out)
	}
}

// handleTyping ставит индикатор печати (TTL в presence) и рассылает сигнал
// остальным участникам. Сигнал рекомендательный, гаснет сам.
func (h *Hub) handleTyping(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ChatID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.presence.SetTyping(ctx, msg.ChatID, c.userID); err != nil {
		logger.Errorf("ws set typing chat=%s user=%s: %v", msg.ChatID, c.userID, err)
	}

	memberIDs, err := h.chatRepo.GetParticipantIDs(ctx, msg.ChatID)
	if err != nil {
		logger.Errorf("ws get members for typing chat=%s: %v", msg.ChatID, err)
		return
	}

	out := OutgoingMessage{
		Type: EventTyping,
		Payload: TypingPayload{
			ChatID: msg.ChatID,
			UserID: c.userID,
		},
	}
	for _, uid := range memberIDs {
		if uid != c.userID {
			h.sendToUser(uid, out)
		}
	}
}

// handleMessageRead двигает курсор чтения и рассылает его остальным: ровно по
// этому событию отправители переводят свои сообщения в delivered/read.
func (h *Hub) handleMessageRead(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ChatID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if err := h.msgRepo.MarkRead(ctx, msg.ChatID, c.userID, now); err != nil {
		logger.Errorf("ws mark read chat=%s user=%s: %v", msg.ChatID, c.userID, err)
		return
	}

	if err := h.presence.ClearTyping(ctx, msg.ChatID, c.userID); err != nil {
		logger.Errorf("ws clear typing chat=%s user=%s: %v", msg.ChatID, c.userID, err)
	}

	memberIDs, err := h.chatRepo.GetParticipantIDs(ctx, msg.ChatID)
	if err != nil {
		logger.Errorf("ws get members for read chat=%s: %v", msg.ChatID, err)
		return
	}

	out := OutgoingMessage{
		Type: EventMessageRead,
		Payload: MessageReadPayload{
			ChatID: msg.ChatID,
			UserID: c.userID,
			ReadAt: now,
		},
	}
	for _, uid := range memberIDs {
		if uid != c.userID {
			h.sendToUser(uid, out)
		}
	}
}

func (h *Hub) broadcastUserStatus(userID string, online bool) {
	evType := EventUserOffline
	if online {
		evType = EventUserOnline
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chatIDs, err := h.chatRepo.GetUserChatIDs(ctx, userID)
	if err != nil {
		logger.Errorf("ws get chats for status broadcast user=%s: %v", userID, err)
		return
	}

	out := OutgoingMessage{
		Type: evType,
		Payload: UserStatusPayload{
			UserID: userID,
			Online: online,
		},
	}

	notified := make(map[string]struct{}, 16)
	for _, chatID := range chatIDs {
		memberIDs, err := h.chatRepo.GetParticipantIDs(ctx, chatID)
		if err != nil {
			logger.Errorf("ws get members for status broadcast chat=%s: %v", chatID, err)
			continue
		}
		for _, uid := range memberIDs {
			if uid == userID {
				continue
			}
			if _, ok := notified[uid]; ok {
				continue
			}
			notified[uid] = struct{}{}
			h.sendToUser(uid, out)
		}
	}
}

// BroadcastToChat sends an event to all active participants of a chat.
func (h *Hub) BroadcastToChat(ctx context.Context, chatID string, msg OutgoingMessage) {
	defer logger.DeferLogDuration("ws.BroadcastToChat", time.Now())()
	memberIDs, err := h.chatRepo.GetParticipantIDs(ctx, chatID)
	if err != nil {
		logger.Errorf("ws broadcast to chat %s: %v", chatID, err)
		return
	}
	for _, uid := range memberIDs {
		h.sendToUser(uid, msg)
	}
}

// SendToUser delivers an event to every connection of one user.
func (h *Hub) SendToUser(userID string, msg OutgoingMessage) {
	h.sendToUser(userID, msg)
}

func (h *Hub) sendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
