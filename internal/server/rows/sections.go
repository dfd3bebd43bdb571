package rows

// Section is a fixed checklist section: its tab and the payload keys it
// collects.
type Section struct {
	Sheet string
	Keys  []string
}

// Tab names.
const (
	SheetSiteInfo       = "Informacoes do Site"
	SheetDocumentation  = "Documentacao"
	SheetInfrastructure = "Infraestrutura"
	SheetElectrical     = "Dados Eletricos"
	SheetSketch         = "Croqui"
	SheetRules          = "Regras"
	SheetGeneral        = "Geral"
	PhotoSheetPrefix    = "Fotos - "
)

// Photo row columns.
const (
	ColCategory = "categoria"
	ColCount    = "quantidade"
	ColCoords   = "coordenadas"
	ColURLs     = "urls"
)

// DefaultSections is the checklist layout, in output order.
var DefaultSections = []Section{
	{Sheet: SheetSiteInfo, Keys: []string{
		"siteType", "operadora", "sharing", "cidade", "proprietario", "telefone", "cand", "cord",
		"endereco", "enderecoSite", "bairro", "representante", "siteId", "dataVisita", "cep",
	}},
	{Sheet: SheetDocumentation, Keys: []string{
		"iptuItr", "escrituraParticular", "contratoCompraVenda", "tempoDocumento", "matriculaCartorio",
		"escrituraPublica", "inventario", "contaConcessionaria", "resumoHistorico", "telefoneDoc",
		"proposta", "contraProposta",
	}},
	{Sheet: SheetInfrastructure, Keys: []string{
		"terrenoPlano", "arvoreArea", "construcaoArea", "medidasArea", "energia", "energiaTipo",
		"energiaVoltagem", "extensaoRede", "metrosExtensao", "coordenadasPontoNominal",
	}},
	{Sheet: SheetElectrical, Keys: []string{
		"coordenadasTrafo", "numeroTrafo", "potenciaTrafo", "numeroMedidor", "coordenadasMedidor",
	}},
	{Sheet: SheetSketch, Keys: []string{
		"tamanhoTerreno", "vegetacaoExistente", "construcoesTerreno", "acesso", "niveisTerreno",
		"observacoesGerais",
	}},
	{Sheet: SheetRules, Keys: []string{
		"regraRodovia40", "regraRio50", "regraColegio50", "regraHospital50", "regraAreaLivre",
		"regraArvoresEspecie", "regrasObs",
	}},
}

// DefaultContainers are nested objects some clients group section fields
// under. Their members are looked up like root keys.
var DefaultContainers = []string{"inicio", "documentacao", "infraestrutura", "eletrica", "croqui", "regras_obs"}
