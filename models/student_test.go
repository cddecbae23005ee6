package models

import "testing"

func TestStudentBeforeSaveNormalizesPhones(t *testing.T) {
	student := Student{
		Name:          "Anu",
		Email:         "anu@example.com",
		Phone:         "98765 43210",
		GuardianPhone: "09876543211",
	}
	if err := student.BeforeSave(nil); err != nil {
		t.Fatalf("BeforeSave: %v", err)
	}
	if student.Phone != "+919876543210" {
		t.Errorf("Phone = %q, want +919876543210", student.Phone)
	}
	if student.GuardianPhone != "+919876543211" {
		t.Errorf("GuardianPhone = %q, want +919876543211", student.GuardianPhone)
	}
}

func TestStudentBeforeSaveRejectsBadEmail(t *testing.T) {
	student := Student{Name: "Anu", Email: "not-an-email"}
	if err := student.BeforeSave(nil); err == nil {
		t.Fatal("expected error for invalid email")
	}
}

func TestStudentBeforeSaveRejectsBadPhone(t *testing.T) {
	student := Student{Name: "Anu", Phone: "12"}
	if err := student.BeforeSave(nil); err == nil {
		t.Fatal("expected error for invalid phone")
	}
}

func TestStudentBeforeSaveSkipsEmptyContacts(t *testing.T) {
	student := Student{Name: "Anu"}
	if err := student.BeforeSave(nil); err != nil {
		t.Fatalf("BeforeSave: %v", err)
	}
}
