package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Filipino

	message.SetString(lang, "notification.generic.title", "Abiso")
	message.SetString(lang, "notification.generic.body", "May bago kang abiso.")
	message.SetString(lang, "notification.buddy_request.title", "Nagsimula ang Buddy Session")
	message.SetString(lang, "notification.buddy_request.body", "Nagsimula si %s ng buddy session kasama ka. Asahan ang check-in tuwing %d minuto.")
	message.SetString(lang, "notification.check_in_success.title", "Nag-check In ang Buddy")
	message.SetString(lang, "notification.check_in_success.body", "Ligtas na nag-check in si %s.")
	message.SetString(lang, "notification.missed_check_in.title", "Hindi Nakapag-check In")
	message.SetString(lang, "notification.missed_check_in.body", "Hindi nakapag-check in si %s! Subukan mo siyang kontakin.")
	message.SetString(lang, "notification.missed_check_in.self_body", "%s, hindi ka nakapag-check in. Ipaalam sa iyong buddy na ligtas ka.")
	message.SetString(lang, "notification.emergency.title", "EMERGENCY ALERT")
	message.SetString(lang, "notification.emergency.body", "Nag-trigger si %s ng emergency! Huling lokasyon: %s")
	message.SetString(lang, "notification.session_ended.title", "Natapos ang Buddy Session")
	message.SetString(lang, "notification.session_ended.body", "Ligtas na tinapos ni %s ang buddy session.")
}
