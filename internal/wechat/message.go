// internal/wechat/message.go
package wechat

import (
	"encoding/xml"
	"fmt"
	"time"
)

// Message types the platform delivers. Text is the only one forwarded
// to the completion API.
const (
	MsgTypeText  = "text"
	MsgTypeImage = "image"
	MsgTypeVoice = "voice"
	MsgTypeVideo = "video"
	MsgTypeMusic = "music"
	MsgTypeNews  = "news"
)

// unsupportedReplies maps known-but-unsupported message types to their
// fixed reply strings. Any type outside this map and MsgTypeText gets
// the bare "success" acknowledgment.
var unsupportedReplies = map[string]string{
	MsgTypeImage: "Image messages are not supported yet",
	MsgTypeVoice: "Voice messages are not supported yet",
	MsgTypeVideo: "Video messages are not supported yet",
	MsgTypeMusic: "Music messages are not supported yet",
	MsgTypeNews:  "Rich-media messages are not supported yet",
}

// InboundMessage is the decoded XML envelope of one webhook delivery.
type InboundMessage struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Content      string   `xml:"Content"`
	MsgID        string   `xml:"MsgId"`
}

// ParseMessage decodes an inbound XML envelope.
func ParseMessage(body []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := xml.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	return &msg, nil
}

// cdata wraps reply fields the platform expects in CDATA sections.
type cdata struct {
	Text string `xml:",cdata"`
}

// replyMessage is the outbound XML envelope for a text reply.
type replyMessage struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   cdata    `xml:"ToUserName"`
	FromUserName cdata    `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      cdata    `xml:"MsgType"`
	Content      cdata    `xml:"Content"`
}

// RenderTextReply builds the reply envelope for an inbound message:
// sender and recipient swapped, a generation timestamp, the fixed text
// type tag, and the reply content.
func RenderTextReply(in *InboundMessage, content string, at time.Time) ([]byte, error) {
	reply := replyMessage{
		ToUserName:   cdata{in.FromUserName},
		FromUserName: cdata{in.ToUserName},
		CreateTime:   at.Unix(),
		MsgType:      cdata{MsgTypeText},
		Content:      cdata{content},
	}
	out, err := xml.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("render reply: %w", err)
	}
	return out, nil
}
