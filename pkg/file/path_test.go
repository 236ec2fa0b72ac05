package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "report.pdf", SanitizeName("report.pdf"))
	assert.Equal(t, "report.pdf", SanitizeName("../../etc/report.pdf"))
	assert.Equal(t, "report.pdf", SanitizeName("c:\\docs\\report.pdf"))
	assert.Equal(t, "document", SanitizeName("   "))
	assert.Equal(t, "document", SanitizeName("."))
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".pdf", Ext("Report.PDF"))
	assert.Equal(t, "", Ext("README"))
}
