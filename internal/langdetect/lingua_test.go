package langdetect

import "testing"

func TestDetect(t *testing.T) {
	t.Parallel()

	spanish, ok := Detect("Únete a nosotros para la conferencia de desarrolladores más grande de la ciudad, con talleres y charlas durante todo el fin de semana.")
	if !ok || spanish.Code != "es" {
		t.Fatalf("expected spanish, got %+v ok=%v", spanish, ok)
	}
	if spanish.IsEnglish() {
		t.Fatalf("spanish must not report english")
	}

	english, ok := Detect("Join us for the largest developer conference in the city, with workshops and talks all weekend long.")
	if !ok || !english.IsEnglish() {
		t.Fatalf("expected english, got %+v ok=%v", english, ok)
	}
}

func TestDetect_ShortSample(t *testing.T) {
	t.Parallel()

	if _, ok := Detect("  RSVP 2026 "); ok {
		t.Fatalf("expected short sample to be undetected")
	}
}
