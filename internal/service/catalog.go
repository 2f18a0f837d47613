package service

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/textnorm"
)

type msgKey int

const (
	msgGenericError msgKey = iota
	msgFutureDate
	msgResolvedBeforeReceived
	msgHelp
	msgGreeting
	msgNotUnderstood
	msgMissingHeader
	msgSuggestions
	msgInvalidFields
	msgEntityNotFound
	msgKnownEntities
	msgDisambiguation
	msgPickAgain
	msgOldDate
	msgWarningReprompt
	msgConfirmTitle
	msgButtonConfirm
	msgButtonCancel
	msgButtonSkip
	msgSaved
	msgWriteFailed
	msgCancelled
	msgNotOwner
	msgNothingPending
	msgStepInput
	msgStepSkipped
	msgNoOpenIssues
	msgNoStock
	msgOpenIssuesHeader
	msgStockHeader
	msgSiteHeader
	msgQueryNeedsSite
	msgParserError
	msgNoOpenTicket
)

var catalog = map[model.Language]map[msgKey]string{
	model.LangTR: {
		msgGenericError:           "Mesajınızı işleyemedim, lütfen tekrar deneyin.",
		msgFutureDate:             "Tarih gelecekte olamaz. Lütfen geçerli bir tarih girin.",
		msgResolvedBeforeReceived: "Çözüm tarihi talep tarihinden önce olamaz. Lütfen tarihleri kontrol edin.",
		msgHelp: "Şunları yapabilirim:\n" +
			"• Destek kaydı: \"Migros'a bugün gittim, 2 tag değiştirdim\"\n" +
			"• Kayıt güncelleme: \"ASM-TR-01 sorunu çözüldü\"\n" +
			"• Yeni saha: \"Yeni müşteri: Anadolu Sağlık, İstanbul, Healthcare\"\n" +
			"• Donanım, ayarlar ve stok güncellemeleri\n" +
			"• Sorgular: \"ASM-TR-01 özeti\", \"açık kayıtlar\", \"stok durumu\"",
		msgGreeting:         "Merhaba! Saha kayıtlarında yardımcı olabilirim. Örnekler için \"yardım\" yazın.",
		msgNotUnderstood:    "Bunu anlayamadım. Örnekler için \"yardım\" yazabilirsiniz.",
		msgMissingHeader:    "Kaydı tamamlamak için şunlara ihtiyacım var:",
		msgSuggestions:      "İsterseniz şunları da ekleyebilirsiniz: %s",
		msgInvalidFields:    "Şu alanlar geçersiz: %s. Lütfen düzeltin.",
		msgEntityNotFound:   "\"%s\" adında bir saha bulamadım. Hangi saha?",
		msgKnownEntities:    "Bilinen sahalar: %s",
		msgDisambiguation:   "Birden fazla saha eşleşti. Hangisi?",
		msgPickAgain:        "Lütfen listeden bir numara veya saha kodu yazın.",
		msgOldDate:          "Tarih (%s) %d günden eski. Yine de devam edilsin mi? (devam / iptal)",
		msgWarningReprompt:  "Devam etmek için \"devam\", vazgeçmek için \"iptal\" yazın.",
		msgConfirmTitle:     "%s: onaylıyor musunuz?",
		msgButtonConfirm:    "Onayla",
		msgButtonCancel:     "İptal",
		msgButtonSkip:       "Atla",
		msgSaved:            "Kaydedildi: %s `%s`",
		msgWriteFailed:      "Kayıt sırasında bir sorun oluştu, işlem yapılmadı. Lütfen daha sonra tekrar deneyin.",
		msgCancelled:        "İptal edildi.",
		msgNotOwner:         "Bu işlemi yalnızca %s onaylayabilir veya iptal edebilir.",
		msgNothingPending:   "Bekleyen bir işlem yok ya da süresi doldu.",
		msgStepInput:        "%s bilgilerini yazın veya bu adımı atlayın.",
		msgStepSkipped:      "%s adımı atlandı.",
		msgNoOpenIssues:     "Açık kayıt yok.",
		msgNoStock:          "Stok kaydı yok.",
		msgOpenIssuesHeader: "Açık kayıtlar:",
		msgStockHeader:      "Stok durumu:",
		msgSiteHeader:       "Saha özeti",
		msgQueryNeedsSite:   "Hangi saha için?",
		msgParserError:      "Hata: %s",
		msgNoOpenTicket:     "`%s` için güncellenecek destek kaydı bulunamadı.",
	},
	model.LangEN: {
		msgGenericError:           "I couldn't process that, please try again.",
		msgFutureDate:             "The date can't be in the future. Please enter a valid date.",
		msgResolvedBeforeReceived: "The resolved date can't be before the received date. Please check the dates.",
		msgHelp: "I can help with:\n" +
			"• Support logs: \"Visited Migros today, replaced 2 tags\"\n" +
			"• Updates: \"ASM-TR-01 issue resolved\"\n" +
			"• New sites: \"New customer: Anadolu Sağlık, Istanbul, Healthcare\"\n" +
			"• Hardware, settings and stock updates\n" +
			"• Queries: \"ASM-TR-01 summary\", \"open issues\", \"stock levels\"",
		msgGreeting:         "Hello! I can help with field records. Type \"help\" for examples.",
		msgNotUnderstood:    "I didn't understand that. Type \"help\" for examples.",
		msgMissingHeader:    "To complete the record I still need:",
		msgSuggestions:      "You may also add: %s",
		msgInvalidFields:    "These fields are invalid: %s. Please correct them.",
		msgEntityNotFound:   "I couldn't find a site called \"%s\". Which site?",
		msgKnownEntities:    "Known sites: %s",
		msgDisambiguation:   "Several sites match. Which one?",
		msgPickAgain:        "Please reply with a number or site id from the list.",
		msgOldDate:          "The date (%s) is older than %d days. Continue anyway? (continue / cancel)",
		msgWarningReprompt:  "Reply \"continue\" to go on or \"cancel\" to stop.",
		msgConfirmTitle:     "%s: confirm?",
		msgButtonConfirm:    "Confirm",
		msgButtonCancel:     "Cancel",
		msgButtonSkip:       "Skip",
		msgSaved:            "Saved: %s `%s`",
		msgWriteFailed:      "Something went wrong while saving, nothing was written. Please try again later.",
		msgCancelled:        "Cancelled.",
		msgNotOwner:         "Only %s can confirm or cancel this.",
		msgNothingPending:   "Nothing is pending, or it has expired.",
		msgStepInput:        "Send the %s details or skip this step.",
		msgStepSkipped:      "Skipped %s.",
		msgNoOpenIssues:     "No open issues.",
		msgNoStock:          "No stock records.",
		msgOpenIssuesHeader: "Open issues:",
		msgStockHeader:      "Stock levels:",
		msgSiteHeader:       "Site summary",
		msgQueryNeedsSite:   "Which site?",
		msgParserError:      "Error: %s",
		msgNoOpenTicket:     "No open support ticket found for `%s` to update.",
	},
}

func say(lang model.Language, key msgKey, args ...any) string {
	m, ok := catalog[lang]
	if !ok {
		m = catalog[model.LangTR]
	}
	if len(args) == 0 {
		return m[key]
	}
	return fmt.Sprintf(m[key], args...)
}

var operationTitles = map[model.Language]map[model.Operation]string{
	model.LangTR: {
		model.OpLogSupport:           "Yeni destek kaydı",
		model.OpUpdateSupport:        "Destek kaydı güncelleme",
		model.OpCreateSite:           "Yeni saha",
		model.OpUpdateSite:           "Saha güncelleme",
		model.OpUpdateHardware:       "Donanım güncelleme",
		model.OpUpdateImplementation: "Kurulum ayarları",
		model.OpUpdateStock:          "Stok güncelleme",
	},
	model.LangEN: {
		model.OpLogSupport:           "New support log",
		model.OpUpdateSupport:        "Support log update",
		model.OpCreateSite:           "New site",
		model.OpUpdateSite:           "Site update",
		model.OpUpdateHardware:       "Hardware update",
		model.OpUpdateImplementation: "Implementation settings",
		model.OpUpdateStock:          "Stock update",
	},
}

func operationTitle(op model.Operation, lang model.Language) string {
	if t, ok := operationTitles[lang][op]; ok {
		return t
	}
	return string(op)
}

// fieldQuestions are the prompts used when a field is missing.
var fieldQuestions = map[string][2]string{
	"site_id":                    {"Hangi saha?", "Which site?"},
	"received_date":              {"Talep hangi tarihte geldi?", "When was the issue reported?"},
	"resolved_date":              {"Hangi tarihte çözüldü?", "When was it resolved?"},
	"type":                       {"Destek türü nedir? (Visit / Remote / Call)", "What kind of support was it? (Visit / Remote / Call)"},
	"status":                     {"Durum nedir? (Open / Resolved / Follow-up / Scheduled)", "What is the status? (Open / Resolved / Follow-up / Scheduled)"},
	"issue_summary":              {"Sorun neydi?", "What was the issue?"},
	"responsible":                {"Kim ilgilendi?", "Who handled it?"},
	"root_cause":                 {"Kök neden neydi?", "What was the root cause?"},
	"resolution":                 {"Nasıl çözüldü?", "How was it resolved?"},
	"customer":                   {"Müşteri adı nedir?", "What is the customer name?"},
	"city":                       {"Hangi şehirde?", "Which city?"},
	"country":                    {"Hangi ülkede?", "Which country?"},
	"facility_type":              {"Tesis türü nedir? (Food / Healthcare)", "What type of facility is it? (Food / Healthcare)"},
	"contract_status":            {"Sözleşme durumu nedir? (Active / Pending / Expired / Pilot)", "What is the contract status? (Active / Pending / Expired / Pilot)"},
	"supervisor_1":               {"Sahadaki sorumlu kim?", "Who is the site supervisor?"},
	"phone_1":                    {"Sorumlunun telefonu nedir?", "What is the supervisor's phone number?"},
	"device_type":                {"Hangi cihaz? (Tag, Anchor, Gateway, ...)", "Which device? (Tag, Anchor, Gateway, ...)"},
	"qty":                        {"Kaç adet?", "How many?"},
	"hw_version":                 {"Donanım versiyonu nedir?", "Which hardware version?"},
	"fw_version":                 {"Yazılım versiyonu nedir?", "Which firmware version?"},
	"internet_provider":          {"İnternet sağlayıcı kim?", "Who is the internet provider?"},
	"ssid":                       {"Wi-Fi ağ adı (SSID) nedir?", "What is the Wi-Fi network name (SSID)?"},
	"location":                   {"Stok nerede? (Istanbul Office / Adana Storage / Other)", "Where is the stock? (Istanbul Office / Adana Storage / Other)"},
	"condition":                  {"Cihazların durumu nedir? (New / Refurbished / Faulty / Reserved)", "What condition are the devices in? (New / Refurbished / Faulty / Reserved)"},
	"clean_hygiene_time":         {"Temizlik hijyen süresi nedir?", "What is the clean hygiene time?"},
	"hp_alert_time":              {"HP uyarı süresi nedir?", "What is the HP alert time?"},
	"hand_hygiene_time":          {"El hijyeni süresi nedir?", "What is the hand hygiene time?"},
	"hand_hygiene_interval":      {"El hijyeni aralığı nedir?", "What is the hand hygiene interval?"},
	"hand_hygiene_type":          {"El hijyeni türü nedir?", "What is the hand hygiene type?"},
	"tag_clean_to_red_timeout":   {"Tag temizden kırmızıya geçiş süresi nedir?", "What is the tag clean-to-red timeout?"},
	"go_live_date":               {"Canlıya geçiş tarihi?", "Go-live date?"},
	"dashboard_link":             {"Dashboard linki?", "Dashboard link?"},
	"whatsapp_group":             {"WhatsApp grubu?", "WhatsApp group?"},
	"address":                    {"Adres?", "Address?"},
	"password":                   {"Wi-Fi şifresi?", "Wi-Fi password?"},
	"gateway_placement":          {"Gateway yerleşimi?", "Gateway placement?"},
	"charging_dock_placement":    {"Şarj istasyonu yerleşimi?", "Charging dock placement?"},
	"dispenser_anchor_placement": {"Dispenser anchor yerleşimi?", "Dispenser anchor placement?"},
	"handwash_time":              {"El yıkama süresi?", "Handwash time?"},
}

func fieldQuestion(field string, lang model.Language) string {
	if q, ok := fieldQuestions[field]; ok {
		if lang == model.LangEN {
			return q[1]
		}
		return q[0]
	}
	return fieldLabel(field) + "?"
}

// fieldLabel turns a field key into a display label.
func fieldLabel(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "id" || w == "ssid" || w == "hw" || w == "fw" || w == "hp" {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var (
	helpWords     = []string{"yardim", "help", "ne yapabilirsin", "what can you do"}
	greetingWords = []string{"merhaba", "selam", "hello", "hi", "hey", "iyi gunler", "gunaydin"}
	continueWords = []string{"devam", "evet", "tamam", "onay", "continue", "yes", "ok", "okay", "go on"}
	abortWords    = []string{"iptal", "hayir", "vazgec", "dur", "cancel", "no", "abort", "stop"}
)

// matches reports whether the folded message is one of words, ignoring
// trailing punctuation.
func matches(message string, words []string) bool {
	m := strings.TrimRight(textnorm.Fold(message), ".!?")
	if m == "" {
		return false
	}
	for _, w := range words {
		if m == w {
			return true
		}
	}
	return false
}
