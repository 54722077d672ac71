package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "notification.generic.title", defaultGenericTitle)
	message.SetString(lang, "notification.generic.body", defaultGenericBody)
	message.SetString(lang, "notification.buddy_request.title", "New Buddy Session Started")
	message.SetString(lang, "notification.buddy_request.body", "%s has started a buddy session with you. Expect a check-in every %d minutes.")
	message.SetString(lang, "notification.check_in_success.title", "Buddy Checked In")
	message.SetString(lang, "notification.check_in_success.body", "%s has checked in safely.")
	message.SetString(lang, "notification.missed_check_in.title", "Missed Check-In Alert")
	message.SetString(lang, "notification.missed_check_in.body", "%s missed their check-in! Please try to contact them.")
	message.SetString(lang, "notification.missed_check_in.self_body", "%s, you missed your check-in. Let your buddy know you are safe.")
	message.SetString(lang, "notification.emergency.title", "EMERGENCY ALERT")
	message.SetString(lang, "notification.emergency.body", "%s triggered an emergency! Last known location: %s")
	message.SetString(lang, "notification.session_ended.title", "Buddy Session Ended")
	message.SetString(lang, "notification.session_ended.body", "%s has ended the buddy session safely.")
}
