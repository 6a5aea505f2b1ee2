// Package protocol defines the wire messages exchanged between the
// driver and a connected client: a JSON object with exactly one
// discriminating field per message, per spec.md §6.
package protocol

import (
	"encoding/json"

	"github.com/quillboard/quillboard/internal/ot"
)

// UserInfo is a connected participant's display information.
type UserInfo struct {
	Name string `json:"name"`
	Hue  uint32 `json:"hue"`
}

// CursorData is the wire shape of a participant's caret/selection state,
// measured in UTF-16 code units at the revision the participant last
// observed.
type CursorData struct {
	Cursors    []int  `json:"cursors"`
	Selections [][2]int `json:"selections"`
}

// UserOperation pairs a participant id with the operation they
// committed, as sent inside a History message.
type UserOperation struct {
	ID        uint64           `json:"id"`
	Operation *ot.OperationSeq `json:"operation"`
}

// ClientMsg is a tagged union of every message a client may send. Exactly
// one field is populated per message.
type ClientMsg struct {
	Edit        *EditMsg    `json:"Edit,omitempty"`
	SetLanguage *string     `json:"SetLanguage,omitempty"`
	ClientInfo  *UserInfo   `json:"ClientInfo,omitempty"`
	CursorData  *CursorData `json:"CursorData,omitempty"`
}

// EditMsg submits an operation against a parent revision.
type EditMsg struct {
	Revision  int              `json:"revision"`
	Operation *ot.OperationSeq `json:"operation"`
}

// ServerMsg is a tagged union of every message the server may send.
// Exactly one field is populated per message.
type ServerMsg struct {
	Identity   *uint64        `json:"Identity,omitempty"`
	History    *HistoryMsg    `json:"History,omitempty"`
	Language   *LanguageMsg   `json:"Language,omitempty"`
	UserInfo   *UserInfoMsg   `json:"UserInfo,omitempty"`
	UserCursor *UserCursorMsg `json:"UserCursor,omitempty"`
}

// HistoryMsg carries a contiguous backlog segment starting at Start.
type HistoryMsg struct {
	Start      int             `json:"start"`
	Operations []UserOperation `json:"operations"`
}

// UserInfoMsg announces a presence add, update, or remove (Info == nil).
type UserInfoMsg struct {
	ID   uint64    `json:"id"`
	Info *UserInfo `json:"info,omitempty"`
}

// UserCursorMsg carries another participant's cursor update.
type UserCursorMsg struct {
	ID   uint64     `json:"id"`
	Data CursorData `json:"data"`
}

// LanguageMsg announces the document's language tag.
type LanguageMsg struct {
	Language string `json:"language"`
}

// MarshalJSON renders ServerMsg as an object with only its populated
// field present, matching the client's single-discriminant expectation.
func (m *ServerMsg) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{}, 1)

	switch {
	case m.Identity != nil:
		result["Identity"] = *m.Identity
	case m.History != nil:
		result["History"] = m.History
	case m.Language != nil:
		result["Language"] = m.Language
	case m.UserInfo != nil:
		result["UserInfo"] = m.UserInfo
	case m.UserCursor != nil:
		result["UserCursor"] = m.UserCursor
	}

	return json.Marshal(result)
}

// UnmarshalJSON parses ClientMsg by checking which of the closed set of
// tags is present in the raw object.
func (m *ClientMsg) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["Edit"]; ok {
		var edit EditMsg
		if err := json.Unmarshal(v, &edit); err != nil {
			return err
		}
		m.Edit = &edit
	}
	if v, ok := raw["SetLanguage"]; ok {
		var lang string
		if err := json.Unmarshal(v, &lang); err != nil {
			return err
		}
		m.SetLanguage = &lang
	}
	if v, ok := raw["ClientInfo"]; ok {
		var info UserInfo
		if err := json.Unmarshal(v, &info); err != nil {
			return err
		}
		m.ClientInfo = &info
	}
	if v, ok := raw["CursorData"]; ok {
		var cursor CursorData
		if err := json.Unmarshal(v, &cursor); err != nil {
			return err
		}
		m.CursorData = &cursor
	}

	return nil
}

// Helper constructors for server messages, mirroring the teacher's
// New*Msg helpers.

func NewIdentityMsg(id uint64) *ServerMsg { return &ServerMsg{Identity: &id} }

func NewHistoryMsg(start int, ops []UserOperation) *ServerMsg {
	return &ServerMsg{History: &HistoryMsg{Start: start, Operations: ops}}
}

func NewLanguageMsg(lang string) *ServerMsg {
	return &ServerMsg{Language: &LanguageMsg{Language: lang}}
}

func NewUserInfoMsg(id uint64, info *UserInfo) *ServerMsg {
	return &ServerMsg{UserInfo: &UserInfoMsg{ID: id, Info: info}}
}

func NewUserCursorMsg(id uint64, data CursorData) *ServerMsg {
	return &ServerMsg{UserCursor: &UserCursorMsg{ID: id, Data: data}}
}
