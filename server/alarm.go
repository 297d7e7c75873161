package server

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/astaxie/beego/httplib"
	log "github.com/sjqzhang/seelog"
)

func (c *Server) SendToMail(to, subject, body, mailtype string) error {
	host := Config().Mail.Host
	user := Config().Mail.User
	password := Config().Mail.Password
	hp := strings.Split(host, ":")
	auth := smtp.PlainAuth("", user, password, hp[0])
	var contentType string
	if mailtype == "html" {
		contentType = "Content-Type: text/" + mailtype + "; charset=UTF-8"
	} else {
		contentType = "Content-Type: text/plain" + "; charset=UTF-8"
	}
	msg := []byte("To: " + to + "\r\nFrom: " + user + ">\r\nSubject: " + subject + "\r\n" + contentType + "\r\n\r\n" + body)
	sendTo := strings.Split(to, ";")
	err := smtp.SendMail(host, auth, user, sendTo, msg)
	return err
}

// alarm notifies the operators over mail and the configured webhook. Used
// for conditions a sweep cannot fix on its own.
func (c *Server) alarm(subject, message string) {
	for _, to := range Config().AlarmReceivers {
		if err := c.SendToMail(to, subject, message, "text"); err != nil {
			log.Error(fmt.Sprintf("alarm mail to %s error: %v", to, err))
		}
	}
	if Config().AlarmUrl != "" {
		req := httplib.Post(Config().AlarmUrl)
		req.SetTimeout(time.Second*10, time.Second*10)
		req.Param("message", message)
		req.Param("subject", subject)
		if _, err := req.String(); err != nil {
			log.Error(fmt.Sprintf("alarm webhook error: %v", err))
		}
	}
}
