package importer

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNormalizeHeader(t *testing.T) {
	require.Equal(t, "registration_no", NormalizeHeader("  Registration No "))
	require.Equal(t, "full_name", NormalizeHeader("FULL  NAME"))
	require.Equal(t, "email", NormalizeHeader("\ufeffEmail"))
}

func TestParseCSV(t *testing.T) {
	data := "Registration No,Full Name,Course,Email\n" +
		"r1,Ana Lima,Go 101,ana@example.com\n" +
		",,,\n" +
		"r2, Bo Chen ,Go 101\n" +
		"r3,Cy Diaz, Go 201 ,cy@example.com\n"

	rows, err := Parse("students.CSV", strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, []Row{
		{Line: 2, RegistrationNo: "r1", FullName: "Ana Lima", Course: "Go 101", Email: "ana@example.com"},
		{Line: 4, RegistrationNo: "r2", FullName: "Bo Chen", Course: "Go 101"},
		{Line: 5, RegistrationNo: "r3", FullName: "Cy Diaz", Course: " Go 201 ", Email: "cy@example.com"},
	}, rows)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"registration_no", "student name", "course_name", "email"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"R1", "Ana", "Go", "ana@example.com"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"R2", "Bo", "Go", "bo@example.com"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := Parse("students.xlsx", buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, Row{Line: 3, RegistrationNo: "R2", FullName: "Bo", Course: "Go", Email: "bo@example.com"}, rows[1])
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Graduates</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Registration No</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Full Name</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Course</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Email</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>R1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Ana </w:t></w:r><w:r><w:t>Lima</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Go</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>ana@example.com</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Registration No</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Full Name</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Course</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Email</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>R2</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Bo</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Go</w:t></w:r></w:p></w:tc><w:tc><w:p/></w:tc></w:tr>
</w:tbl>
</w:body>
</w:document>`

func TestParseDOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(docxBody))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	rows, err := Parse("students.docx", &buf)
	require.NoError(t, err)
	require.Equal(t, []Row{
		{Line: 2, RegistrationNo: "R1", FullName: "Ana Lima", Course: "Go", Email: "ana@example.com"},
		{Line: 2, RegistrationNo: "R2", FullName: "Bo", Course: "Go"},
	}, rows)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("students.pdf", strings.NewReader(""))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Parse("students.csv", strings.NewReader("foo,bar\n1,2\n"))
	require.ErrorIs(t, err, ErrNoColumns)

	_, err = Parse("students.csv", strings.NewReader("registration_no,email\n"))
	require.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("students.docx", strings.NewReader("not a zip"))
	require.Error(t, err)
}
