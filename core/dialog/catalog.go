package dialog

import (
	"errors"
	"fmt"
	"strings"
)

// Option is one numbered entry of the menu.
type Option struct {
	Token string `yaml:"token"`
	Title string `yaml:"title"`
	Reply string `yaml:"reply"`
}

// Catalog maps normalized option tokens to canned replies and renders the
// welcome listing pushed on first contact. It is immutable once built.
type Catalog struct {
	header  string
	footer  string
	welcome string
	options []Option
	index   map[string]int
}

// NewCatalog validates options and renders the welcome text.
// The listing is the header, one "token - title" line per option, a blank
// line and the footer.
func NewCatalog(header, footer string, options []Option) (*Catalog, error) {
	if len(options) == 0 {
		return nil, errors.New("dialog: catalog has no options")
	}
	c := &Catalog{
		header:  header,
		footer:  footer,
		options: make([]Option, 0, len(options)),
		index:   make(map[string]int, len(options)),
	}
	for i, opt := range options {
		opt.Token = strings.TrimSpace(opt.Token)
		if opt.Token == "" {
			return nil, fmt.Errorf("dialog: option %d has empty token", i)
		}
		if strings.TrimSpace(opt.Reply) == "" {
			return nil, fmt.Errorf("dialog: option %q has empty reply", opt.Token)
		}
		if _, dup := c.index[opt.Token]; dup {
			return nil, fmt.Errorf("dialog: duplicate option %q", opt.Token)
		}
		c.index[opt.Token] = len(c.options)
		c.options = append(c.options, opt)
	}
	c.welcome = c.render()
	return c, nil
}

// Welcome returns the full menu listing.
func (c *Catalog) Welcome() string { return c.welcome }

// Header returns the text printed above the option lines.
func (c *Catalog) Header() string { return c.header }

// Footer returns the text printed below the option lines.
func (c *Catalog) Footer() string { return c.footer }

// Lookup returns the reply for an already trimmed token.
func (c *Catalog) Lookup(token string) (string, bool) {
	i, ok := c.index[token]
	if !ok {
		return "", false
	}
	return c.options[i].Reply, true
}

// Has reports whether token is a menu option.
func (c *Catalog) Has(token string) bool {
	_, ok := c.index[token]
	return ok
}

// Options returns a copy of the ordered options.
func (c *Catalog) Options() []Option {
	return append([]Option(nil), c.options...)
}

func (c *Catalog) render() string {
	var b strings.Builder
	b.WriteString(c.header)
	b.WriteByte('\n')
	for _, opt := range c.options {
		title := opt.Title
		if title == "" {
			title = opt.Token
		}
		b.WriteString(opt.Token)
		b.WriteString(" - ")
		b.WriteString(title)
		b.WriteByte('\n')
	}
	if c.footer != "" {
		b.WriteByte('\n')
		b.WriteString(c.footer)
	}
	return b.String()
}

// Default menu texts of Maranatha Serviços Técnicos.
const (
	DefaultHeader = "Olá! Seja bem-vindo à Maranatha Serviços Técnicos. Como podemos ajudar?\n\n" +
		"Por favor, escolha uma das opções abaixo digitando o número correspondente:"
	DefaultFooter = "Aguardamos sua escolha!"
)

// DefaultOptions returns the stock ten-option menu.
func DefaultOptions() []Option {
	return []Option{
		{Token: "1", Title: "Solicitar Orçamento", Reply: "Você escolheu Solicitar Orçamento. Por favor, envie detalhes do serviço que você precisa para que possamos enviar um orçamento.\n" +
			"Para encerrar o atendimento, digite 10."},
		{Token: "2", Title: "Horário de Funcionamento", Reply: "Nosso horário de funcionamento é de segunda a sexta-feira, das 8h às 18h."},
		{Token: "3", Title: "Formas de Pagamento", Reply: "Aceitamos pagamento via transferência bancária, cartão de crédito e boleto. Entre em contato para mais detalhes."},
		{Token: "4", Title: "Informações sobre Serviços", Reply: "Oferecemos uma ampla gama de serviços para atender suas necessidades, incluindo:\n" +
			"- **Instalações Elétricas:** Projetos personalizados para residências e empresas, garantindo eficiência e segurança.\n" +
			"- **Manutenção:** Serviços de manutenção preventiva e corretiva para garantir o funcionamento adequado dos seus sistemas elétricos.\n" +
			"- **Segurança Eletrônica:** Soluções completas em segurança, incluindo instalação de sistemas de CFTV (circuito fechado de televisão) para monitoramento e gravação de vídeo, além de sistemas de alarmes que protegem seu imóvel contra invasões.\n" +
			"- **Automação Residencial e Comercial:** Instalação de sistemas de automação para controle de iluminação, climatização e segurança, além de automação de portões e cercas elétricas, proporcionando mais comodidade e segurança.\n" +
			"Estamos comprometidos em oferecer a melhor proteção e eficiência para o seu espaço. Para mais informações, entre em contato conosco!"},
		{Token: "5", Title: "Manutenção e Suporte", Reply: "Para solicitar manutenção ou suporte, entre em contato pelo telefone (XX) XXXX-XXXX ou através do nosso site."},
		{Token: "6", Title: "Trocas e Devoluções", Reply: "Para trocas e devoluções de produtos ou serviços, consulte nossa política de devoluções ou fale com nosso suporte."},
		{Token: "7", Title: "Trabalhe Conosco", Reply: "Tem interesse em trabalhar conosco? Envie seu currículo para recrutamento@maranatha.com.br"},
		{Token: "8", Title: "Falar com Atendente", Reply: "Aguarde um momento, iremos conectá-lo a um atendente.\nPara encerrar o atendimento, digite 10."},
		{Token: "9", Title: "Promoções Atuais", Reply: "Confira nossas promoções no site! Temos descontos especiais em diversos serviços."},
		{Token: "10", Title: "Encerrar Atendimento", Reply: "Atendimento encerrado. Obrigado por entrar em contato."},
	}
}

// DefaultCatalog builds the stock catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultHeader, DefaultFooter, DefaultOptions())
	if err != nil {
		panic(err)
	}
	return c
}
