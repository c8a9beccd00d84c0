package validate

import "testing"

type generateRequest struct {
	Website     string `json:"website" validate:"required,http_url,max=2048"`
	Description string `json:"description" validate:"max=20"`
}

func TestStructValid(t *testing.T) {
	res, err := New().Struct(generateRequest{Website: "https://example.com"})
	if err != nil {
		t.Fatalf("Struct() error = %v", err)
	}
	if !res.Valid() {
		t.Errorf("Valid() = false, errors = %v", res.Errors)
	}
}

func TestStructFieldErrors(t *testing.T) {
	res, err := New().Struct(generateRequest{Description: "this description is far too long"})
	if err != nil {
		t.Fatalf("Struct() error = %v", err)
	}
	if res.Valid() {
		t.Fatal("Valid() = true, want false")
	}
	if len(res.Errors) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(res.Errors), res.Errors)
	}

	byField := map[string]FieldError{}
	for _, fe := range res.Errors {
		byField[fe.Field] = fe
	}
	if fe := byField["website"]; fe.Tag != "required" || fe.Message != "website is required" {
		t.Errorf("website error = %+v", fe)
	}
	if fe := byField["description"]; fe.Tag != "max" {
		t.Errorf("description error = %+v", fe)
	}
}

func TestStructRejectsBadURL(t *testing.T) {
	res, err := New().Struct(generateRequest{Website: "not a url"})
	if err != nil {
		t.Fatalf("Struct() error = %v", err)
	}
	if res.Valid() || res.Errors[0].Message != "website must be a valid URL" {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestStructNonStruct(t *testing.T) {
	if _, err := New().Struct(42); err == nil {
		t.Error("expected error for non-struct")
	}
}
