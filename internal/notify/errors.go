package notify

import "errors"

var (
	// ErrRateLimited — пользователь исчерпал лимит уведомлений.
	// Напоминание считается обработанным и повторно не отправляется.
	ErrRateLimited = errors.New("rate limited")

	// ErrDuplicateDispatcher — для action уже зарегистрирован диспетчер.
	ErrDuplicateDispatcher = errors.New("dispatcher already registered")

	// ErrGateway — шлюз отклонил запрос.
	ErrGateway = errors.New("gateway rejected request")
)

var (
	// ErrTemplateParse — ошибка парсинга шаблона сообщения.
	ErrTemplateParse = errors.New("template parse error")

	// ErrTemplateRender — ошибка рендеринга шаблона сообщения.
	ErrTemplateRender = errors.New("template render error")
)
