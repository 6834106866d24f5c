package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/service"
)

var weekdayNames = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

func periodName(p models.Period) string {
	if p == models.PeriodAfternoon {
		return "tarde"
	}
	return "manhã"
}

// humanDate renders "quinta-feira, 25/09".
func humanDate(t time.Time) string {
	return weekdayNames[t.Weekday()] + ", " + t.Format("02/01")
}

func humanSlot(date time.Time, period models.Period) string {
	return fmt.Sprintf("%s, no período da %s", humanDate(date), periodName(period))
}

const (
	msgAskCPF          = "Olá! Para localizar sua ordem de serviço, informe o CPF do titular (somente números)."
	msgInvalidCPF      = "Esse CPF não parece válido. Pode conferir e enviar novamente, somente os 11 números?"
	msgClientNotFound  = "Não encontrei cadastro com esse CPF. Pode conferir e enviar novamente?"
	msgNoOpenOrders    = "Não encontrei ordens de serviço abertas no seu cadastro. Se precisar de ajuda, fale com nossa central."
	msgAskDate         = "Qual data fica melhor para a visita? Pode responder, por exemplo, 25/09 ou \"quinta de manhã\"."
	msgInvalidDate     = "Não consegui entender a data. Pode enviar no formato dia/mês, por exemplo 25/09?"
	msgSlaExpired      = "O prazo para agendamento desta ordem já terminou. Nossa equipe vai entrar em contato para reagendar."
	msgTransient       = "Estamos com instabilidade no sistema de agendamento. Por favor, envie sua mensagem novamente em alguns instantes."
	msgOfferSearchMore = "Se preferir, responda \"manter\" para ficar com a sugestão anterior ou \"outra\" para eu procurar outra data."
)

func msgOrderList(orders []models.ServiceOrder) string {
	var b strings.Builder
	b.WriteString("Encontrei mais de uma ordem de serviço aberta. Qual delas você quer agendar?\n")
	for i, o := range orders {
		desc := o.Description
		if desc == "" {
			desc = "ordem " + o.ID
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, desc, o.ID)
	}
	b.WriteString("Responda com o número da opção.")
	return b.String()
}

func msgSuggest(slot models.Slot) string {
	return fmt.Sprintf("A primeira data disponível é %s. Posso confirmar o agendamento?", humanSlot(slot.Date, slot.Period))
}

func msgConfirm(slot models.Slot) string {
	return fmt.Sprintf("Temos disponibilidade em %s. Confirma o agendamento?", humanSlot(slot.Date, slot.Period))
}

func msgAskPeriod(date time.Time) string {
	return fmt.Sprintf("Certo, %s. Prefere o período da manhã ou da tarde?", humanDate(date))
}

func msgAskPeriodClarified(date time.Time) string {
	return fmt.Sprintf("Para %s, responda \"manhã\" (das 8h às 12h) ou \"tarde\" (das 13h às 17h).", humanDate(date))
}

func msgAskConfirmAgain(date time.Time, period models.Period) string {
	return fmt.Sprintf("Só para confirmar: posso agendar para %s? Responda \"sim\" ou \"não\".", humanSlot(date, period))
}

func msgScheduled(date time.Time, period models.Period) string {
	return fmt.Sprintf("Agendamento confirmado para %s. Até lá!", humanSlot(date, period))
}

func msgAlreadyScheduled(date time.Time, period models.Period) string {
	return fmt.Sprintf("Sua visita já está agendada para %s.", humanSlot(date, period))
}

func msgDeclined(suggestion *time.Time, period models.Period) string {
	if suggestion == nil || period == "" {
		return "Sem problemas. " + msgAskDate
	}
	return fmt.Sprintf("Sem problemas. A sugestão de %s continua válida. Me diga outra data ou responda \"manter\" para ficar com ela, ou \"outra\" para eu procurar a próxima disponível.", humanSlot(*suggestion, period))
}

func msgNotBusinessDay(date time.Time) string {
	return fmt.Sprintf("Não realizamos visitas em %s. Escolha um dia de segunda a sexta-feira.", humanDate(date))
}

func msgTooSoon(min time.Time) string {
	return fmt.Sprintf("Essa data é muito próxima. O primeiro dia possível é %s.", humanDate(min))
}

// The deadline may fall on a weekend; the user is pointed at the last day
// that can actually be booked.
func msgSlaExceeded(deadline time.Time) string {
	return fmt.Sprintf("Essa data passa do prazo de atendimento da sua ordem. Escolha um dia até %s.", humanDate(service.LastBusinessDay(deadline)))
}

func msgCapacity(date time.Time, period models.Period) string {
	return fmt.Sprintf("Não temos mais vagas em %s.", humanSlot(date, period))
}

func msgNoSlot(deadline time.Time) string {
	return fmt.Sprintf("Não encontrei vagas disponíveis até %s. Nossa equipe vai entrar em contato.", humanDate(service.LastBusinessDay(deadline)))
}
