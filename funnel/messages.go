package funnel

// User-facing texts. The audience is Russian-speaking; keep these in
// sync with the materials prompt wording the support team publishes.
const (
	msgWelcome         = "Привет! Добро пожаловать в бота."
	msgIntroAudio      = "🎵 Вот вводное аудио для ознакомления."
	msgSuggestUpload   = "Вы можете загрузить дополнительные материалы (документы, фото), которые помогут создать персональную программу."
	msgMaterialsThanks = "Материалы получены. Спасибо!"
	msgProgramNotice   = "Ваша индивидуальная программа будет создана в ближайшее время."
	msgReferralLink    = "Ваша уникальная реферальная ссылка: %s"
	msgVoiceAck        = "Получено аудиосообщение."
	msgProgramQuery    = "Запрос к программе обработан."
	msgReferralQuery   = "Запрос к рефералу обработан."
	msgUploadReminder  = "Спасибо за сообщение. Загрузите материалы (документы или фото), чтобы мы могли создать для вас индивидуальную программу."
	msgUseStart        = "Спасибо за сообщение. Используйте /start для начала работы с ботом."
)

const (
	keywordProgram  = "программа"
	keywordReferral = "реферал"
)
