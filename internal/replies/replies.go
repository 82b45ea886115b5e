package replies

import (
	"fmt"
	"strings"

	"remindbot/pkg/tgui"
)

// Pack is the copy for one language. Strings are Telegram HTML; %-verbs are filled by the helpers below.
type Pack struct {
	Lang Language

	Start string
	Help  string

	ParseEmpty       string
	Scheduled        string // text, time
	AlreadyScheduled string // text
	CapacityExceeded string // text, max
	CapacityBatch    string // max
	ConfirmPrompt    string
	Confirmed        string // count
	Declined         string
	NothingPending   string
	StoreFailed      string

	Deleted        string // ids
	DeletedAll     string // count
	DeleteInvalid  string
	DeleteNotFound string

	ListEmpty  string
	ListHeader string

	TzPrompt    string // current offset
	TzNotSet    string
	TzConfirmed string // offset
	TzInvalid   string
	TzCancelled string
	TzWarning   string

	Fired         string // mention, text
	Repeated      string // time
	RepeatExpired string

	BtnConfirm string
	BtnDecline string
	BtnCancel  string
	BtnRepeat  string
}

var packs = map[Language]*Pack{
	EN: {
		Lang:  EN,
		Start: "Hi! Send me a message with a date and I will remind you.\nExample: <code>buy milk in 30 minutes</code>\nSet your timezone with /tz.",
		Help: "Write what to remind about and when:\n" +
			"• <code>call mom in 2 hours</code>\n• <code>standup tomorrow at 10:00</code>\n• <code>water plants at 19:00</code>\n\n" +
			"/list – your reminders\n/del 1 3 5-7 – delete by id (/del all clears)\n/3 – delete reminder 3\n/tz – set your timezone",
		ParseEmpty:       "I could not find a date in your message.",
		Scheduled:        "\"%s\" scheduled for <b>%s</b>",
		AlreadyScheduled: "\"%s\" is already scheduled",
		CapacityExceeded: "\"%s\" was not scheduled: the limit of %d reminders is reached",
		CapacityBatch:    "Nothing was saved: the limit of %d reminders is reached.",
		ConfirmPrompt:    "Save these reminders?",
		Confirmed:        "Saved %d reminder(s).",
		Declined:         "Cancelled.",
		NothingPending:   "Nothing to confirm anymore.",
		StoreFailed:      "Something went wrong while saving. Please try again.",
		Deleted:          "Deleted reminders: %s",
		DeletedAll:       "Deleted all %d reminder(s).",
		DeleteInvalid:    "Tell me which reminders to delete, e.g. <code>/del 1 3 5-7</code> or <code>/del all</code>.",
		DeleteNotFound:   "No reminders with those numbers.",
		ListEmpty:        "There are no reminders in this chat.",
		ListHeader:       "Reminders:",
		TzPrompt:         "Your timezone is <b>%s</b>.\nSend your UTC offset, for example <code>+3</code>, <code>-5:30</code>.",
		TzNotSet:         "Your timezone is not set.\nSend your UTC offset, for example <code>+3</code>, <code>-5:30</code>.",
		TzConfirmed:      "Timezone set to <b>%s</b>.",
		TzInvalid:        "That does not look like an offset. Try <code>+3</code> or <code>-5:30</code>.",
		TzCancelled:      "Timezone change cancelled.",
		TzWarning:        "Your timezone is not set, so times are treated as UTC. Use /tz to set it.",
		Fired:            "⏰ %s\"%s\"",
		Repeated:         "Will remind again at <b>%s</b>",
		RepeatExpired:    "This reminder can no longer be repeated.",
		BtnConfirm:       "Confirm",
		BtnDecline:       "Decline",
		BtnCancel:        "Cancel",
		BtnRepeat:        "Repeat",
	},
	RU: {
		Lang:  RU,
		Start: "Привет! Напишите сообщение с датой, и я напомню.\nНапример: <code>купить молоко через 30 минут</code>\nЧасовой пояс задаётся командой /tz.",
		Help: "Напишите, о чём и когда напомнить:\n" +
			"• <code>позвонить маме через 2 часа</code>\n• <code>созвон завтра в 10:00</code>\n• <code>полить цветы в 19:00</code>\n\n" +
			"/list – ваши напоминания\n/del 1 3 5-7 – удалить по номерам (/del all удаляет все)\n/3 – удалить напоминание 3\n/tz – часовой пояс",
		ParseEmpty:       "Не удалось найти дату в сообщении.",
		Scheduled:        "\"%s\" запланировано на <b>%s</b>",
		AlreadyScheduled: "\"%s\" уже запланировано",
		CapacityExceeded: "\"%s\" не запланировано: достигнут предел в %d напоминаний",
		CapacityBatch:    "Ничего не сохранено: достигнут предел в %d напоминаний.",
		ConfirmPrompt:    "Сохранить эти напоминания?",
		Confirmed:        "Сохранено напоминаний: %d.",
		Declined:         "Отменено.",
		NothingPending:   "Подтверждать уже нечего.",
		StoreFailed:      "Не удалось сохранить. Попробуйте ещё раз.",
		Deleted:          "Удалены напоминания: %s",
		DeletedAll:       "Удалено напоминаний: %d.",
		DeleteInvalid:    "Укажите номера, например <code>/del 1 3 5-7</code> или <code>/del all</code>.",
		DeleteNotFound:   "Напоминаний с такими номерами нет.",
		ListEmpty:        "В этом чате нет напоминаний.",
		ListHeader:       "Напоминания:",
		TzPrompt:         "Ваш часовой пояс: <b>%s</b>.\nОтправьте смещение от UTC, например <code>+3</code>, <code>-5:30</code>.",
		TzNotSet:         "Часовой пояс не задан.\nОтправьте смещение от UTC, например <code>+3</code>, <code>-5:30</code>.",
		TzConfirmed:      "Часовой пояс: <b>%s</b>.",
		TzInvalid:        "Это не похоже на смещение. Попробуйте <code>+3</code> или <code>-5:30</code>.",
		TzCancelled:      "Смена часового пояса отменена.",
		TzWarning:        "Часовой пояс не задан, время считается по UTC. Задайте его командой /tz.",
		Fired:            "⏰ %s\"%s\"",
		Repeated:         "Напомню снова <b>%s</b>",
		RepeatExpired:    "Это напоминание больше нельзя повторить.",
		BtnConfirm:       "Подтвердить",
		BtnDecline:       "Отклонить",
		BtnCancel:        "Отмена",
		BtnRepeat:        "Повторить",
	},
}

// For returns the pack for lang, falling back to English.
func For(lang Language) *Pack {
	if p, ok := packs[lang]; ok {
		return p
	}
	return packs[EN]
}

func (p *Pack) ScheduledLine(text string, target, offset int64, period int64) string {
	when := FormatTime(target, offset, p.Lang)
	if period > 0 {
		when += ", " + FormatPeriod(period, p.Lang)
	}
	return fmt.Sprintf(p.Scheduled, tgui.Esc(text), when)
}

func (p *Pack) AlreadyScheduledLine(text string) string {
	return fmt.Sprintf(p.AlreadyScheduled, tgui.Esc(text))
}

func (p *Pack) CapacityLine(text string, limit int) string {
	return fmt.Sprintf(p.CapacityExceeded, tgui.Esc(text), limit)
}

func (p *Pack) CapacityBatchLine(limit int) string { return fmt.Sprintf(p.CapacityBatch, limit) }

func (p *Pack) ConfirmedLine(n int) string { return fmt.Sprintf(p.Confirmed, n) }

func (p *Pack) DeletedLine(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf(p.Deleted, strings.Join(parts, ", "))
}

func (p *Pack) DeletedAllLine(n int) string { return fmt.Sprintf(p.DeletedAll, n) }

// ListLine renders one reminder as `/id. "text" by user: time`.
func (p *Pack) ListLine(id int, text, username string, target, offset int64) string {
	by := ""
	if username != "" && username != "none" {
		by = " @" + string(tgui.Esc(username))
	}
	return fmt.Sprintf("/%d. \"%s\"%s: %s", id, tgui.Esc(tgui.TruncRunes(text, 200)), by, FormatTime(target, offset, p.Lang))
}

func (p *Pack) TzPromptLine(offset int64, known bool) string {
	if !known {
		return p.TzNotSet
	}
	return fmt.Sprintf(p.TzPrompt, FormatOffset(offset))
}

func (p *Pack) TzConfirmedLine(offset int64) string {
	return fmt.Sprintf(p.TzConfirmed, FormatOffset(offset))
}

// FiredLine renders a delivered reminder. username is empty or "none" outside groups.
func (p *Pack) FiredLine(username, text string) string {
	mention := ""
	if username != "" && username != "none" {
		mention = "@" + string(tgui.Esc(username)) + " "
	}
	return fmt.Sprintf(p.Fired, mention, tgui.Esc(text))
}

func (p *Pack) RepeatedLine(target, offset int64) string {
	return fmt.Sprintf(p.Repeated, FormatTime(target, offset, p.Lang))
}
