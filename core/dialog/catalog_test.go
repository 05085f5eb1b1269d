package dialog

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultWelcomeMatchesListing(t *testing.T) {
	want := "Olá! Seja bem-vindo à Maranatha Serviços Técnicos. Como podemos ajudar?\n\n" +
		"Por favor, escolha uma das opções abaixo digitando o número correspondente:\n" +
		"1 - Solicitar Orçamento\n" +
		"2 - Horário de Funcionamento\n" +
		"3 - Formas de Pagamento\n" +
		"4 - Informações sobre Serviços\n" +
		"5 - Manutenção e Suporte\n" +
		"6 - Trocas e Devoluções\n" +
		"7 - Trabalhe Conosco\n" +
		"8 - Falar com Atendente\n" +
		"9 - Promoções Atuais\n" +
		"10 - Encerrar Atendimento\n\n" +
		"Aguardamos sua escolha!"
	if got := DefaultCatalog().Welcome(); got != want {
		t.Fatalf("welcome mismatch:\n%s", got)
	}
}

func TestCatalogLookup(t *testing.T) {
	c := DefaultCatalog()
	if _, ok := c.Lookup("11"); ok {
		t.Fatal("unexpected option 11")
	}
	if _, ok := c.Lookup(" 2"); ok {
		t.Fatal("lookup must not trim")
	}
	text, ok := c.Lookup("2")
	if !ok || text == "" {
		t.Fatal("missing option 2")
	}
	if len(c.Options()) != 10 || !c.Has("10") {
		t.Fatal("default catalog should hold ten options")
	}
}

func TestNewCatalogValidation(t *testing.T) {
	cases := map[string][]Option{
		"empty":     nil,
		"no token":  {{Token: " ", Reply: "x"}},
		"no reply":  {{Token: "1", Reply: ""}},
		"duplicate": {{Token: "1", Reply: "a"}, {Token: " 1 ", Reply: "b"}},
	}
	for name, opts := range cases {
		if _, err := NewCatalog("h", "f", opts); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestSenderMuxRoutesByTransport(t *testing.T) {
	mux := NewSenderMux()
	tg := &recordingSender{}
	web := &recordingSender{}
	mux.Handle("tg", tg)
	mux.Handle("web", web)

	if err := mux.Send(context.Background(), "tg:5", "a"); err != nil {
		t.Fatalf("send tg: %v", err)
	}
	if err := mux.Send(context.Background(), "web:abc", "b"); err != nil {
		t.Fatalf("send web: %v", err)
	}
	if tg.count() != 1 || web.count() != 1 {
		t.Fatalf("routing counts tg=%d web=%d", tg.count(), web.count())
	}
	for _, id := range []string{"sms:1", "plain", ":x", "tg:"} {
		if err := mux.Send(context.Background(), id, "c"); !errors.Is(err, ErrNoRoute) {
			t.Fatalf("send %q = %v, want ErrNoRoute", id, err)
		}
	}
	if got := mux.Transports(); len(got) != 2 || got[0] != "tg" {
		t.Fatalf("transports = %v", got)
	}
}

func TestSplitUserID(t *testing.T) {
	tr, local, ok := SplitUserID(UserID("tg", "-100"))
	if !ok || tr != "tg" || local != "-100" {
		t.Fatalf("split = %q %q %v", tr, local, ok)
	}
}
