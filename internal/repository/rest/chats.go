package rest

import (
	"context"
	"net/http"
	"net/url"

	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

// ChatRepository is the /chats endpoint group, including branch metadata.
type ChatRepository struct {
	client *Client
}

var _ repositories.ChatRepository = (*ChatRepository)(nil)

// NewChatRepository creates the /chats repository on top of c.
func NewChatRepository(c *Client) *ChatRepository {
	return &ChatRepository{client: c}
}

type connectionBody struct {
	ConnectionType models.ConnectionType `json:"connection_type"`
}

type messageBranches struct {
	MessageID string              `json:"message_id"`
	Branches  []models.BranchLink `json:"branches"`
}

func (r *ChatRepository) Create(ctx context.Context, req repositories.CreateChatRequest) (*models.Chat, error) {
	var chat models.Chat
	if err := r.client.do(ctx, http.MethodPost, "/chats", nil, req, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// Delete removes a chat, its branches and the link pointing at it.
func (r *ChatRepository) Delete(ctx context.Context, chatID string) error {
	return r.client.do(ctx, http.MethodDelete, "/chats/"+pathID(chatID), nil, nil, nil)
}

func (r *ChatRepository) List(ctx context.Context, filter repositories.ChatFilter) ([]models.Chat, error) {
	query := url.Values{}
	if filter.ParentDirectoryID != nil {
		query.Set("parent_directory_id", *filter.ParentDirectoryID)
	}
	if filter.ParentChatID != nil {
		query.Set("parent_chat_id", *filter.ParentChatID)
	}
	var chats []models.Chat
	if err := r.client.do(ctx, http.MethodGet, "/chats", query, nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *ChatRepository) UpdateConnectionType(ctx context.Context, childChatID string, connection models.ConnectionType) error {
	return r.client.do(ctx, http.MethodPut, "/chats/"+pathID(childChatID)+"/chat-metadata", nil, connectionBody{ConnectionType: connection}, nil)
}

func (r *ChatRepository) GetMessageBranches(ctx context.Context, messageID string) ([]models.BranchLink, error) {
	var resp messageBranches
	if err := r.client.do(ctx, http.MethodGet, "/messages/"+pathID(messageID)+"/chat-metadata", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Branches, nil
}
